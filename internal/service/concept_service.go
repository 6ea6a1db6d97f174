package service

import (
	"context"
	"strings"
	"time"

	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/embedding"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type IConceptService interface {
	List(ctx context.Context, userId uuid.UUID, domain string) ([]*dto.ConceptResponse, error)
	Domains(ctx context.Context, userId uuid.UUID) ([]*dto.DomainCountResponse, error)
	Stats(ctx context.Context, userId uuid.UUID) (*dto.ConceptStatsResponse, error)
	Search(ctx context.Context, userId uuid.UUID, req *dto.ConceptSearchRequest) ([]*dto.ConceptSearchResponse, error)
	InvalidateStats(userId uuid.UUID)
}

// ConceptReader is the read side of the concept store.
type ConceptReader interface {
	List(ctx context.Context, userId uuid.UUID, domain string) ([]*entity.Concept, error)
	Domains(ctx context.Context, userId uuid.UUID) ([]conceptstore.DomainCount, error)
	Stats(ctx context.Context, userId uuid.UUID) (*conceptstore.Stats, error)
	Search(ctx context.Context, userId uuid.UUID, domain string, vec []float32, limit int) ([]conceptstore.Match, error)
}

type conceptService struct {
	store             ConceptReader
	embeddingProvider embedding.EmbeddingProvider
	normalizer        *digest.DomainNormalizer
	statsCache        *cache.Cache
	logger            logger.ILogger
}

func NewConceptService(
	store ConceptReader,
	embeddingProvider embedding.EmbeddingProvider,
	normalizer *digest.DomainNormalizer,
	log logger.ILogger,
) IConceptService {
	return &conceptService{
		store:             store,
		embeddingProvider: embeddingProvider,
		normalizer:        normalizer,
		statsCache:        cache.New(5*time.Minute, 10*time.Minute),
		logger:            log,
	}
}

func (s *conceptService) List(ctx context.Context, userId uuid.UUID, domain string) ([]*dto.ConceptResponse, error) {
	if strings.TrimSpace(domain) != "" {
		domain = s.normalizer.Normalize(domain)
	}
	concepts, err := s.store.List(ctx, userId, domain)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConceptResponse, 0, len(concepts))
	for _, c := range concepts {
		res = append(res, toConceptResponse(c))
	}
	return res, nil
}

func (s *conceptService) Domains(ctx context.Context, userId uuid.UUID) ([]*dto.DomainCountResponse, error) {
	domains, err := s.store.Domains(ctx, userId)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.DomainCountResponse, 0, len(domains))
	for _, d := range domains {
		res = append(res, &dto.DomainCountResponse{Domain: d.Domain, Count: d.Count})
	}
	return res, nil
}

func (s *conceptService) Stats(ctx context.Context, userId uuid.UUID) (*dto.ConceptStatsResponse, error) {
	if cached, found := s.statsCache.Get(userId.String()); found {
		return cached.(*dto.ConceptStatsResponse), nil
	}

	stats, err := s.store.Stats(ctx, userId)
	if err != nil {
		return nil, err
	}

	res := &dto.ConceptStatsResponse{
		TotalConcepts:  stats.TotalConcepts,
		TotalArticles:  stats.TotalArticles,
		RecentConcepts: stats.Recent,
		Domains:        make([]dto.DomainCountResponse, 0, len(stats.Domains)),
	}
	for _, d := range stats.Domains {
		res.Domains = append(res.Domains, dto.DomainCountResponse{Domain: d.Domain, Count: d.Count})
	}

	s.statsCache.SetDefault(userId.String(), res)
	return res, nil
}

func (s *conceptService) InvalidateStats(userId uuid.UUID) {
	s.statsCache.Delete(userId.String())
}

func (s *conceptService) Search(ctx context.Context, userId uuid.UUID, req *dto.ConceptSearchRequest) ([]*dto.ConceptSearchResponse, error) {
	emb, err := s.embeddingProvider.Generate(ctx, req.Query, embedding.TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}

	domain := ""
	if strings.TrimSpace(req.Domain) != "" {
		domain = s.normalizer.Normalize(req.Domain)
	}

	matches, err := s.store.Search(ctx, userId, domain, emb.Embedding.Values, req.Limit)
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ConceptSearchResponse, 0, len(matches))
	for _, m := range matches {
		res = append(res, &dto.ConceptSearchResponse{
			ConceptResponse: *toConceptResponse(m.Concept),
			Score:           m.Score,
		})
	}

	s.logger.Debug("CONCEPT_SERVICE", "Semantic search", map[string]interface{}{
		"user_id": userId.String(),
		"domain":  domain,
		"results": len(res),
	})
	return res, nil
}

func toConceptResponse(c *entity.Concept) *dto.ConceptResponse {
	return &dto.ConceptResponse{
		Id:          c.Id,
		Name:        c.Name,
		Domain:      c.Domain,
		Explanation: c.Explanation,
		Analogy:     c.Analogy,
		Source:      c.Source,
		SourceUrl:   c.SourceUrl,
		LearnedDate: c.LearnedDate,
	}
}
