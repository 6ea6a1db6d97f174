package conceptstore

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const scoreEpsilon = 1e-9

// Persistence is the durable side of the store. InsertConcepts must be
// all-or-nothing.
type Persistence interface {
	LoadConcepts(ctx context.Context, userId uuid.UUID) ([]*entity.Concept, error)
	InsertConcepts(ctx context.Context, userId uuid.UUID, concepts []*entity.Concept) error
}

type Match struct {
	Concept *entity.Concept
	Score   float64
}

type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

type Stats struct {
	TotalConcepts int           `json:"total_concepts"`
	TotalArticles int           `json:"total_articles"`
	Recent        []string      `json:"recent_concepts"`
	Domains       []DomainCount `json:"domains"`
}

// Store is a per-user, domain partitioned vector index. Partitions never
// share state; a query only ever touches the partition of the user it names.
type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*partition
	persistence  Persistence
	dimension    int
	maxStaleness time.Duration
	logger       logger.ILogger
	now          func() time.Time
}

type partition struct {
	mu       sync.RWMutex
	loaded   bool
	loadedAt time.Time
	domains  map[string][]*entity.Concept

	// serializes Commit and reloads so staged copies are built from the latest state
	commitMu sync.Mutex
}

type Option func(*Store)

// WithMaxStaleness makes reads reload a partition from persistence once it
// is older than d. Needed when other processes write the same rows.
func WithMaxStaleness(d time.Duration) Option {
	return func(s *Store) {
		s.maxStaleness = d
	}
}

// New builds a store. persistence may be nil for a purely in-memory store;
// dimension 0 disables the dimension check.
func New(persistence Persistence, dimension int, log logger.ILogger, opts ...Option) *Store {
	s := &Store{
		users:       make(map[uuid.UUID]*partition),
		persistence: persistence,
		dimension:   dimension,
		logger:      log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entry(userId uuid.UUID) *partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[userId]
	if !ok {
		p = &partition{domains: make(map[string][]*entity.Concept)}
		if s.persistence == nil {
			p.loaded = true
		}
		s.users[userId] = p
	}
	return p
}

// fresh reports whether p can be served without a reload. Caller holds p.mu.
func (s *Store) fresh(p *partition) bool {
	if !p.loaded {
		return false
	}
	if s.maxStaleness <= 0 || s.persistence == nil {
		return true
	}
	return s.now().Sub(p.loadedAt) <= s.maxStaleness
}

func (s *Store) partition(ctx context.Context, userId uuid.UUID) (*partition, error) {
	p := s.entry(userId)

	p.mu.RLock()
	ok := s.fresh(p)
	p.mu.RUnlock()
	if ok {
		return p, nil
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.fresh(p) {
		return p, nil
	}
	if err := s.load(ctx, userId, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh replaces the user's partition with what persistence holds now.
// Callers that share persistence with other writers call it after taking
// the user's run lock. It is a no-op for a purely in-memory store.
func (s *Store) Refresh(ctx context.Context, userId uuid.UUID) error {
	if s.persistence == nil {
		return nil
	}
	p := s.entry(userId)

	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.load(ctx, userId, p)
}

// load swaps in the persisted concepts. Caller holds p.commitMu and p.mu.
func (s *Store) load(ctx context.Context, userId uuid.UUID, p *partition) error {
	concepts, err := s.persistence.LoadConcepts(ctx, userId)
	if err != nil {
		return fmt.Errorf("load concepts for user %s: %w", userId, err)
	}
	domains := make(map[string][]*entity.Concept)
	for _, c := range concepts {
		domains[c.Domain] = append(domains[c.Domain], c)
	}
	p.domains = domains
	p.loaded = true
	p.loadedAt = s.now()

	s.logger.Debug("CONCEPT_STORE", "Partition loaded", map[string]interface{}{
		"user_id":  userId.String(),
		"concepts": len(concepts),
		"domains":  len(domains),
	})
	return nil
}

// checkDimension reports unusable vectors as apperr.KindEmbedding so the
// caller can drop the candidate instead of failing.
func (s *Store) checkDimension(vec []float32) error {
	if len(vec) == 0 {
		return apperr.Embedding("empty embedding", nil)
	}
	if s.dimension > 0 && len(vec) != s.dimension {
		return apperr.Embedding(fmt.Sprintf("embedding has %d dimensions, store expects %d", len(vec), s.dimension), nil)
	}
	return nil
}

// Nearest returns the best match for embedding among the user's concepts
// in domain, or nil if the domain is empty. Ties go to the earliest
// learned concept, then to the smallest id.
func (s *Store) Nearest(ctx context.Context, userId uuid.UUID, domain string, embedding []float32) (*Match, error) {
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}
	p, err := s.partition(ctx, userId)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var best *entity.Concept
	bestScore := 0.0
	for _, c := range p.domains[domain] {
		score, err := CosineSimilarity(embedding, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("compare with concept %s: %w", c.Id, err)
		}
		if best == nil || score > bestScore+scoreEpsilon ||
			(score > bestScore-scoreEpsilon && earlier(c, best)) {
			best = c
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Match{Concept: best.Clone(), Score: bestScore}, nil
}

func earlier(a, b *entity.Concept) bool {
	if !a.LearnedDate.Equal(b.LearnedDate) {
		return a.LearnedDate.Before(b.LearnedDate)
	}
	return a.Id.String() < b.Id.String()
}

// Search ranks the user's concepts against embedding. An empty domain
// searches every domain.
func (s *Store) Search(ctx context.Context, userId uuid.UUID, domain string, embedding []float32, limit int) ([]Match, error) {
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	p, err := s.partition(ctx, userId)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	var matches []Match
	for d, concepts := range p.domains {
		if domain != "" && d != domain {
			continue
		}
		for _, c := range concepts {
			score, err := CosineSimilarity(embedding, c.Embedding)
			if err != nil {
				p.mu.RUnlock()
				return nil, fmt.Errorf("compare with concept %s: %w", c.Id, err)
			}
			matches = append(matches, Match{Concept: c, Score: score})
		}
	}
	p.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return earlier(matches[i].Concept, matches[j].Concept)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	for i := range matches {
		matches[i].Concept = matches[i].Concept.Clone()
	}
	return matches, nil
}

// List returns the user's concepts, newest first. An empty domain lists
// every domain.
func (s *Store) List(ctx context.Context, userId uuid.UUID, domain string) ([]*entity.Concept, error) {
	p, err := s.partition(ctx, userId)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	var out []*entity.Concept
	for d, concepts := range p.domains {
		if domain != "" && d != domain {
			continue
		}
		for _, c := range concepts {
			out = append(out, c.Clone())
		}
	}
	p.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *Store) Domains(ctx context.Context, userId uuid.UUID) ([]DomainCount, error) {
	p, err := s.partition(ctx, userId)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	out := make([]DomainCount, 0, len(p.domains))
	for d, concepts := range p.domains {
		out = append(out, DomainCount{Domain: d, Count: len(concepts)})
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out, nil
}

func (s *Store) Stats(ctx context.Context, userId uuid.UUID) (*Stats, error) {
	all, err := s.List(ctx, userId, "")
	if err != nil {
		return nil, err
	}
	domains, err := s.Domains(ctx, userId)
	if err != nil {
		return nil, err
	}

	articles := make(map[string]struct{})
	for _, c := range all {
		key := c.SourceUrl
		if key == "" {
			key = "title:" + c.Source
		}
		articles[key] = struct{}{}
	}

	recent := make([]string, 0, 5)
	for i := 0; i < len(all) && i < 5; i++ {
		recent = append(recent, all[i].Name)
	}

	return &Stats{
		TotalConcepts: len(all),
		TotalArticles: len(articles),
		Recent:        recent,
		Domains:       domains,
	}, nil
}

// Commit inserts a batch for one user. Readers see either none or all of
// the batch: the batch is persisted first, then a staged copy of the
// partition replaces the live one. Ids, user id and learned date are
// filled in when missing.
func (s *Store) Commit(ctx context.Context, userId uuid.UUID, concepts []*entity.Concept) error {
	if len(concepts) == 0 {
		return nil
	}
	p, err := s.partition(ctx, userId)
	if err != nil {
		return apperr.Commit("load partition", err)
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	now := s.now()
	batch := make([]*entity.Concept, len(concepts))
	for i, c := range concepts {
		if err := s.checkDimension(c.Embedding); err != nil {
			return apperr.Commit(fmt.Sprintf("concept %q", c.Name), err)
		}
		cp := c.Clone()
		if cp.Id == uuid.Nil {
			cp.Id = uuid.New()
		}
		cp.UserId = userId
		if cp.LearnedDate.IsZero() {
			cp.LearnedDate = now
		}
		batch[i] = cp
	}

	p.mu.RLock()
	staged := make(map[string][]*entity.Concept, len(p.domains))
	for d, list := range p.domains {
		staged[d] = list
	}
	p.mu.RUnlock()

	for _, c := range batch {
		list := staged[c.Domain]
		grown := make([]*entity.Concept, len(list), len(list)+1)
		copy(grown, list)
		staged[c.Domain] = append(grown, c)
	}

	if err := ctx.Err(); err != nil {
		return apperr.New(apperr.KindCanceled, "commit aborted", err)
	}

	if s.persistence != nil {
		persisted := make([]*entity.Concept, len(batch))
		for i, c := range batch {
			persisted[i] = c.Clone()
		}
		if err := s.persistence.InsertConcepts(ctx, userId, persisted); err != nil {
			return apperr.Commit("persist concept batch", err)
		}
	}

	p.mu.Lock()
	p.domains = staged
	p.mu.Unlock()

	for i, c := range batch {
		concepts[i].Id = c.Id
		concepts[i].UserId = c.UserId
		concepts[i].LearnedDate = c.LearnedDate
	}

	s.logger.Info("CONCEPT_STORE", "Batch committed", map[string]interface{}{
		"user_id": userId.String(),
		"count":   len(batch),
	})
	return nil
}

func sortNewestFirst(concepts []*entity.Concept) {
	sort.SliceStable(concepts, func(i, j int) bool {
		a, b := concepts[i], concepts[j]
		if !a.LearnedDate.Equal(b.LearnedDate) {
			return a.LearnedDate.After(b.LearnedDate)
		}
		return a.Id.String() < b.Id.String()
	})
}
