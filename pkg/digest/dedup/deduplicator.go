package dedup

import (
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/embedding"
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Index is the read side of the concept store the deduplicator needs.
type Index interface {
	Nearest(ctx context.Context, userId uuid.UUID, domain string, vec []float32) (*conceptstore.Match, error)
}

type Config struct {
	Threshold        float64
	RelatedThreshold float64
	Concurrency      int
}

type Result struct {
	// Concepts keeps candidate order; known and new are interleaved.
	Concepts []digest.Concept
	Dropped  []digest.Dropped
}

func (r *Result) New() []digest.Concept {
	return r.filter(digest.StatusNew)
}

func (r *Result) Known() []digest.Concept {
	return r.filter(digest.StatusKnown)
}

func (r *Result) filter(status digest.Status) []digest.Concept {
	var out []digest.Concept
	for _, c := range r.Concepts {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

type Deduplicator struct {
	embedder embedding.EmbeddingProvider
	index    Index
	cfg      Config
	logger   logger.ILogger
}

func New(embedder embedding.EmbeddingProvider, index Index, cfg Config, log logger.ILogger) *Deduplicator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Deduplicator{embedder: embedder, index: index, cfg: cfg, logger: log}
}

// Run classifies every candidate as known or new against the user's store.
// threshold overrides the configured one when > 0. Candidates whose
// embedding cannot be computed are dropped; transient provider exhaustion,
// cancellation and store failures abort the stage.
func (d *Deduplicator) Run(ctx context.Context, userId uuid.UUID, candidates []digest.Candidate, threshold float64) (*Result, error) {
	if threshold <= 0 {
		threshold = d.cfg.Threshold
	}

	vectors, embedErrs, err := d.embedAll(ctx, candidates)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var accepted []digest.Concept

	for i, cand := range candidates {
		if embedErrs[i] != nil {
			d.drop(res, cand, digest.ReasonEmbeddingFailed, embedErrs[i])
			continue
		}
		vec := vectors[i]

		match, err := d.index.Nearest(ctx, userId, cand.Domain, vec)
		if err != nil {
			if apperr.Is(err, apperr.KindEmbedding) {
				d.drop(res, cand, digest.ReasonEmbeddingFailed, err)
				continue
			}
			return nil, fmt.Errorf("query concept store: %w", err)
		}

		if match != nil && match.Score >= threshold {
			known := digest.Concept{
				Id:          match.Concept.Id,
				Name:        cand.Name,
				Domain:      cand.Domain,
				Explanation: match.Concept.Explanation,
				Analogy:     match.Concept.Analogy,
				Status:      digest.StatusKnown,
				Similarity:  match.Score,
				MatchedName: match.Concept.Name,
			}
			res.Concepts = append(res.Concepts, known)
			d.logger.Debug("DEDUP", "Candidate already known", map[string]interface{}{
				"name":       cand.Name,
				"domain":     cand.Domain,
				"matched":    match.Concept.Name,
				"similarity": match.Score,
			})
			continue
		}

		if dup, score, ok := duplicateInRun(accepted, cand.Domain, vec, threshold); ok {
			d.drop(res, cand, digest.ReasonDuplicateInRun, fmt.Errorf("%.3f similar to %q", score, dup))
			continue
		}

		fresh := digest.Concept{
			Name:        cand.Name,
			Domain:      cand.Domain,
			Explanation: cand.Explanation,
			Status:      digest.StatusNew,
			Embedding:   vec,
		}
		if match != nil {
			fresh.Similarity = match.Score
			if match.Score >= d.cfg.RelatedThreshold {
				fresh.RelatedTo = match.Concept.Name
			}
		}
		accepted = append(accepted, fresh)
		res.Concepts = append(res.Concepts, fresh)
	}

	d.logger.Info("DEDUP", "Deduplication finished", map[string]interface{}{
		"user_id":   userId.String(),
		"threshold": threshold,
		"new":       len(accepted),
		"known":     len(res.Concepts) - len(accepted),
		"dropped":   len(res.Dropped),
	})
	return res, nil
}

// embedAll embeds every canonical string concurrently. Per-candidate
// failures land in errs; only stage-fatal failures are returned.
func (d *Deduplicator) embedAll(ctx context.Context, candidates []digest.Candidate) ([][]float32, []error, error) {
	vectors := make([][]float32, len(candidates))
	errs := make([]error, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, cand := range candidates {
		g.Go(func() error {
			resp, err := d.embedder.Generate(gctx, cand.CanonicalText(), embedding.TaskSemanticSimilarity)
			if err != nil {
				switch apperr.KindOf(err) {
				case apperr.KindProviderTransient, apperr.KindCanceled:
					return err
				}
				if apperr.IsMisconfigured(err) {
					return err
				}
				errs[i] = apperr.Embedding("embed candidate", err)
				return nil
			}
			if resp == nil || len(resp.Embedding.Values) == 0 {
				errs[i] = apperr.Embedding("provider returned an empty vector", nil)
				return nil
			}
			vectors[i] = resp.Embedding.Values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vectors, errs, nil
}

func (d *Deduplicator) drop(res *Result, cand digest.Candidate, reason string, err error) {
	res.Dropped = append(res.Dropped, digest.Dropped{
		Name:   cand.Name,
		Domain: cand.Domain,
		Reason: reason,
		Detail: err.Error(),
	})
	d.logger.Warn("DEDUP", "Candidate dropped", map[string]interface{}{
		"name":   cand.Name,
		"domain": cand.Domain,
		"reason": reason,
		"error":  err.Error(),
	})
}

func duplicateInRun(accepted []digest.Concept, domain string, vec []float32, threshold float64) (string, float64, bool) {
	for _, a := range accepted {
		if a.Domain != domain {
			continue
		}
		score, err := conceptstore.CosineSimilarity(vec, a.Embedding)
		if err != nil {
			continue
		}
		if score >= threshold {
			return a.Name, score, true
		}
	}
	return "", 0, false
}
