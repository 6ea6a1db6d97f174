package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"concept-digest-be/internal/dto"
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/internal/repository/memory"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/article"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/pipeline"
	"concept-digest-be/pkg/embedding"
	"concept-digest-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keywordEmbedder struct{}

// Generate puts the text on one axis per keyword it contains.
func (keywordEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	lower := strings.ToLower(text)
	vec := []float32{0.01, 0.01}
	if strings.Contains(lower, "tree") {
		vec[0] = 1
	}
	if strings.Contains(lower, "hash") {
		vec[1] = 1
	}
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: vec}}, nil
}

type recordingRunner struct {
	req pipeline.Request
	err error
}

func (r *recordingRunner) Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	r.req = req
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Result{
		RunId: uuid.New(),
		Title: req.Title,
		Concepts: []digest.Concept{
			{Name: "B-tree", Status: digest.StatusNew},
			{Name: "Hash index", Status: digest.StatusKnown},
		},
		Stats: pipeline.RunStats{New: 1, Known: 1},
	}, nil
}

type stubSource struct {
	art *article.Article
	err error
}

func (s *stubSource) Fetch(ctx context.Context, rawURL string) (*article.Article, error) {
	return s.art, s.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEvents) Publish(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func seededStore(t *testing.T, userId uuid.UUID) *conceptstore.Store {
	t.Helper()
	store := conceptstore.New(nil, 2, logger.NewNopLogger())
	require.NoError(t, store.Commit(context.Background(), userId, []*entity.Concept{
		{Name: "B-tree", Domain: "databases", Embedding: []float32{1, 0}, Source: "Storage 101", SourceUrl: "https://a.example"},
		{Name: "Consistent hashing", Domain: "distributed systems", Embedding: []float32{0, 1}, Source: "Scaling", SourceUrl: "https://b.example"},
	}))
	return store
}

func TestConceptService_StatsAreCachedUntilInvalidated(t *testing.T) {
	userId := uuid.New()
	store := seededStore(t, userId)
	svc := NewConceptService(store, keywordEmbedder{}, digest.NewDomainNormalizer(nil), logger.NewNopLogger())

	stats, err := svc.Stats(context.Background(), userId)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConcepts)
	assert.Equal(t, 2, stats.TotalArticles)

	require.NoError(t, store.Commit(context.Background(), userId, []*entity.Concept{
		{Name: "LSM tree", Domain: "databases", Embedding: []float32{1, 0.1}, Source: "Storage 101", SourceUrl: "https://a.example"},
	}))

	stats, err = svc.Stats(context.Background(), userId)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConcepts)

	svc.InvalidateStats(userId)
	stats, err = svc.Stats(context.Background(), userId)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalConcepts)
	assert.Equal(t, 2, stats.TotalArticles)
	assert.Equal(t, "LSM tree", stats.RecentConcepts[0])
}

func TestConceptService_Search(t *testing.T) {
	userId := uuid.New()
	svc := NewConceptService(seededStore(t, userId), keywordEmbedder{}, digest.NewDomainNormalizer(nil), logger.NewNopLogger())

	res, err := svc.Search(context.Background(), userId, &dto.ConceptSearchRequest{Query: "search tree", Limit: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "B-tree", res[0].Name)

	res, err = svc.Search(context.Background(), userId, &dto.ConceptSearchRequest{Query: "search tree", Domain: "Distributed  Systems"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Consistent hashing", res[0].Name)

	other, err := svc.Search(context.Background(), uuid.New(), &dto.ConceptSearchRequest{Query: "search tree"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestProfileService(t *testing.T) {
	svc := NewProfileService(memory.NewUserProfileRepository())
	userId := uuid.New()

	_, err := svc.Profile(context.Background(), userId)
	assert.True(t, apperr.Is(err, apperr.KindProfileMissing))

	res, err := svc.Get(context.Background(), userId)
	require.NoError(t, err)
	assert.True(t, res.IsDefault)

	res, err = svc.Update(context.Background(), userId, &dto.UpdateProfileRequest{Background: " nurse ", Interests: "cooking"})
	require.NoError(t, err)
	assert.False(t, res.IsDefault)
	assert.Equal(t, "nurse", res.Background)

	profile, err := svc.Profile(context.Background(), userId)
	require.NoError(t, err)
	assert.Equal(t, "cooking", profile.Interests)
}

func TestDigestService_Process(t *testing.T) {
	testCases := []struct {
		name      string
		req       dto.DigestRequest
		source    *stubSource
		wantTitle string
		wantType  string
		wantText  string
		wantKind  apperr.Kind
	}{
		{
			name:      "text defaults",
			req:       dto.DigestRequest{Text: "body"},
			source:    &stubSource{},
			wantTitle: "Untitled",
			wantType:  "text",
			wantText:  "body",
		},
		{
			name:      "url is fetched",
			req:       dto.DigestRequest{URL: "https://example.com/post"},
			source:    &stubSource{art: &article.Article{Title: "Fetched", Text: "page text"}},
			wantTitle: "Fetched",
			wantType:  "html",
			wantText:  "page text",
		},
		{
			name:     "fetch failure",
			req:      dto.DigestRequest{URL: "https://example.com/post"},
			source:   &stubSource{err: apperr.Validation("no readable text")},
			wantKind: apperr.KindValidation,
		},
		{
			name:     "pdf without text",
			req:      dto.DigestRequest{SourceType: "pdf", URL: "https://example.com/a.pdf"},
			source:   &stubSource{},
			wantKind: apperr.KindValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &recordingRunner{}
			pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
			defer pubSub.Close()
			userId := uuid.New()
			concepts := NewConceptService(seededStore(t, userId), keywordEmbedder{}, digest.NewDomainNormalizer(nil), logger.NewNopLogger())
			svc := NewDigestService(runner, tc.source, NewPublisherService("digest", pubSub), concepts, logger.NewNopLogger())

			res, err := svc.Process(context.Background(), userId, &tc.req)
			if tc.wantKind != "" {
				assert.True(t, apperr.Is(err, tc.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantTitle, runner.req.Title)
			assert.Equal(t, tc.wantType, runner.req.SourceType)
			assert.Equal(t, tc.wantText, runner.req.Text)
			assert.Equal(t, userId, runner.req.UserId)
			assert.Equal(t, 1, res.Stats.New)
			assert.NotNil(t, res.Questions)
		})
	}
}

func TestDigestService_RunErrorPassesThrough(t *testing.T) {
	runErr := &pipeline.RunError{Stage: pipeline.StateCommitting, Kind: apperr.KindCommit, Err: errors.New("boom")}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	concepts := NewConceptService(conceptstore.New(nil, 2, logger.NewNopLogger()), keywordEmbedder{}, digest.NewDomainNormalizer(nil), logger.NewNopLogger())
	svc := NewDigestService(&recordingRunner{err: runErr}, &stubSource{}, NewPublisherService("digest", pubSub), concepts, logger.NewNopLogger())

	_, err := svc.Process(context.Background(), uuid.New(), &dto.DigestRequest{Text: "body"})
	var got *pipeline.RunError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, pipeline.StateCommitting, got.Stage)
}

func TestConsumerService_ForwardsCompletedDigests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	userId := uuid.New()
	concepts := NewConceptService(seededStore(t, userId), keywordEmbedder{}, digest.NewDomainNormalizer(nil), logger.NewNopLogger())
	forwarded := &recordingEvents{}
	consumer := NewConsumerService(pubSub, "digest", concepts, forwarded, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	svc := NewDigestService(&recordingRunner{}, &stubSource{}, NewPublisherService("digest", pubSub), concepts, logger.NewNopLogger())
	_, err := svc.Process(ctx, userId, &dto.DigestRequest{Text: "body", Title: "Storage"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return forwarded.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	forwarded.mu.Lock()
	evt := forwarded.events[0]
	forwarded.mu.Unlock()
	assert.Equal(t, events.TypeDigestCompleted, evt.EventType())
	assert.Equal(t, userId.String(), evt.Payload()["user_id"])
	assert.Equal(t, []string{"B-tree"}, evt.Payload()["new_concepts"])
}
