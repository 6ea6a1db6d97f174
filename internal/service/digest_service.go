package service

import (
	"context"
	"encoding/json"
	"strings"

	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/article"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/pipeline"

	"github.com/google/uuid"
)

type IDigestService interface {
	Process(ctx context.Context, userId uuid.UUID, req *dto.DigestRequest) (*dto.DigestResponse, error)
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type digestService struct {
	runner           Runner
	articleSource    article.Source
	publisherService IPublisherService
	conceptService   IConceptService
	logger           logger.ILogger
}

func NewDigestService(
	runner Runner,
	articleSource article.Source,
	publisherService IPublisherService,
	conceptService IConceptService,
	log logger.ILogger,
) IDigestService {
	return &digestService{
		runner:           runner,
		articleSource:    articleSource,
		publisherService: publisherService,
		conceptService:   conceptService,
		logger:           log,
	}
}

func (s *digestService) Process(ctx context.Context, userId uuid.UUID, req *dto.DigestRequest) (*dto.DigestResponse, error) {
	if req.SourceType == "pdf" && strings.TrimSpace(req.Text) == "" {
		return nil, apperr.Validation("pdf text must be extracted before submission")
	}

	runReq := pipeline.Request{
		UserId:     userId,
		Text:       req.Text,
		Title:      strings.TrimSpace(req.Title),
		SourceURL:  req.URL,
		SourceType: req.SourceType,
		Threshold:  req.Threshold,
	}

	if strings.TrimSpace(runReq.Text) == "" {
		if req.URL == "" {
			return nil, apperr.Validation("either text or url is required")
		}
		art, err := s.articleSource.Fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		runReq.Text = art.Text
		runReq.SourceType = "html"
		if runReq.Title == "" {
			runReq.Title = art.Title
		}
	}
	if runReq.Title == "" {
		runReq.Title = "Untitled"
	}
	if runReq.SourceType == "" {
		runReq.SourceType = "text"
	}

	res, err := s.runner.Run(ctx, runReq)
	if err != nil {
		return nil, err
	}

	s.conceptService.InvalidateStats(userId)
	s.announce(ctx, userId, res)

	return dto.NewDigestResponse(res), nil
}

// announce is best effort; a lost event never fails a committed run.
func (s *digestService) announce(ctx context.Context, userId uuid.UUID, res *pipeline.Result) {
	msg := dto.DigestCompletedMessage{
		RunId:     res.RunId,
		UserId:    userId,
		Title:     res.Title,
		SourceURL: res.SourceURL,
		New:       res.Stats.New,
		Known:     res.Stats.Known,
	}
	for _, c := range res.Concepts {
		if c.Status == digest.StatusNew {
			msg.NewConcepts = append(msg.NewConcepts, c.Name)
		}
	}

	payload, err := json.Marshal(msg)
	if err == nil {
		err = s.publisherService.Publish(ctx, payload)
	}
	if err != nil {
		s.logger.Warn("DIGEST_SERVICE", "Failed to publish digest completion", map[string]interface{}{
			"run_id": res.RunId.String(),
			"error":  err.Error(),
		})
	}
}
