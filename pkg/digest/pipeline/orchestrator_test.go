package pipeline

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/dedup"
	"concept-digest-be/pkg/digest/extract"
	"concept-digest-be/pkg/embedding"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExtractor struct {
	candidates []digest.Candidate
	err        error
}

func (s *stubExtractor) Extract(ctx context.Context, text string) (*extract.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &extract.Result{
		Sections:   []digest.Section{{Title: "Intro", Summary: "What the article covers."}},
		Candidates: s.candidates,
	}, nil
}

type vectorEmbedder struct {
	vectors map[string][]float32
}

func (v *vectorEmbedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	name, _, _ := strings.Cut(text, ":")
	return &embedding.EmbeddingResponse{Embedding: embedding.EmbeddingResponseEmbedding{Values: v.vectors[name]}}, nil
}

type stubPersonalizer struct {
	mu       sync.Mutex
	profiles []*entity.UserProfile
	hook     func()
}

func (s *stubPersonalizer) Run(ctx context.Context, profile *entity.UserProfile, concepts []digest.Concept) ([]digest.Concept, error) {
	s.mu.Lock()
	s.profiles = append(s.profiles, profile)
	s.mu.Unlock()
	if s.hook != nil {
		s.hook()
	}
	out := make([]digest.Concept, len(concepts))
	for i, c := range concepts {
		if c.Status == digest.StatusNew {
			c.Analogy = "Like a " + c.Name + " for " + profile.Background
		}
		out[i] = c
	}
	return out, nil
}

type stubQuestions struct{}

func (stubQuestions) Generate(ctx context.Context, sections []digest.Section, concepts []digest.Concept) ([]digest.Question, error) {
	return []digest.Question{{Question: "Why does this matter?"}}, nil
}

type stubProfiles struct {
	profiles map[uuid.UUID]*entity.UserProfile
	err      error
}

func (s *stubProfiles) Profile(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.profiles[userId]; ok {
		return p, nil
	}
	return nil, apperr.ProfileMissing("no profile")
}

type memoryPersistence struct {
	mu          sync.Mutex
	rows        map[uuid.UUID][]*entity.Concept
	failing     bool
	afterInsert func()
}

func (m *memoryPersistence) LoadConcepts(ctx context.Context, userId uuid.UUID) ([]*entity.Concept, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.Concept, len(m.rows[userId]))
	for i, c := range m.rows[userId] {
		out[i] = c.Clone()
	}
	return out, nil
}

func (m *memoryPersistence) count(userId uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[userId])
}

func (m *memoryPersistence) InsertConcepts(ctx context.Context, userId uuid.UUID, concepts []*entity.Concept) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("connection reset")
	}
	m.rows[userId] = append(m.rows[userId], concepts...)
	if m.afterInsert != nil {
		m.afterInsert()
	}
	return nil
}

type harness struct {
	store        *conceptstore.Store
	persistence  *memoryPersistence
	extractor    *stubExtractor
	personalizer *stubPersonalizer
	profiles     *stubProfiles
	orchestrator *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	h := &harness{
		persistence: &memoryPersistence{rows: map[uuid.UUID][]*entity.Concept{}},
		extractor: &stubExtractor{candidates: []digest.Candidate{
			{Name: "Consistent hashing", Domain: "distributed systems", Explanation: "Keys map to a ring of nodes."},
			{Name: "Write-ahead log", Domain: "databases", Explanation: "Changes are logged before they are applied."},
		}},
		personalizer: &stubPersonalizer{},
		profiles:     &stubProfiles{profiles: map[uuid.UUID]*entity.UserProfile{}},
	}
	h.store = conceptstore.New(h.persistence, 2, log)
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"Consistent hashing": {1, 0},
		"Write-ahead log":    {0, 1},
	}}
	deduplicator := dedup.New(embedder, h.store, dedup.Config{Threshold: 0.6, RelatedThreshold: 0.45}, log)
	h.orchestrator = NewOrchestrator(Deps{
		Extractor:    h.extractor,
		Deduplicator: deduplicator,
		Personalizer: h.personalizer,
		Questions:    stubQuestions{},
		Store:        h.store,
		Profiles:     h.profiles,
		Logger:       log,
		Observers:    []Observer{NewLogObserver(log)},
	}, 0)
	return h
}

func (h *harness) total(t *testing.T, userId uuid.UUID) int {
	t.Helper()
	stats, err := h.store.Stats(context.Background(), userId)
	require.NoError(t, err)
	return stats.TotalConcepts
}

func article(userId uuid.UUID) Request {
	return Request{UserId: userId, Text: "An article about storage engines.", Title: "Storage 101"}
}

func TestOrchestrator_FirstRunCommitsNewConcepts(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()

	res, err := h.orchestrator.Run(context.Background(), article(userId))
	require.NoError(t, err)

	assert.Equal(t, RunStats{New: 2, Known: 0, Dropped: 0}, res.Stats)
	assert.Equal(t, 2, h.total(t, userId))
	for _, c := range res.Concepts {
		assert.NotEqual(t, uuid.Nil, c.Id, c.Name)
		assert.NotEmpty(t, c.Analogy)
	}
	assert.Len(t, res.Questions, 1)

	var states []State
	for _, tr := range res.Transitions {
		states = append(states, tr.To)
	}
	assert.Equal(t, append(append([]State{}, Stages...), StateDone), states)
}

func TestOrchestrator_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()

	first, err := h.orchestrator.Run(context.Background(), article(userId))
	require.NoError(t, err)
	second, err := h.orchestrator.Run(context.Background(), article(userId))
	require.NoError(t, err)

	assert.Equal(t, 0, second.Stats.New)
	assert.Equal(t, 2, second.Stats.Known)
	assert.Equal(t, 2, h.total(t, userId))

	ids := map[string]uuid.UUID{}
	for _, c := range first.Concepts {
		ids[c.Name] = c.Id
	}
	for _, c := range second.Concepts {
		assert.Equal(t, ids[c.Name], c.Id, c.Name)
		assert.Equal(t, digest.StatusKnown, c.Status)
	}
}

func TestOrchestrator_CommitFailureLeavesStoreUntouched(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()
	h.persistence.failing = true

	res, err := h.orchestrator.Run(context.Background(), article(userId))
	require.Error(t, err)
	assert.Nil(t, res)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, StateCommitting, runErr.Stage)
	assert.Equal(t, apperr.KindCommit, runErr.Kind)
	assert.Equal(t, 0, h.total(t, userId))

	h.persistence.failing = false
	res, err = h.orchestrator.Run(context.Background(), article(userId))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.New)
}

func TestOrchestrator_CancellationBeforeCommit(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	h.personalizer.hook = cancel

	_, err := h.orchestrator.Run(ctx, article(userId))
	require.Error(t, err)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, apperr.KindCanceled, runErr.Kind)
	assert.Equal(t, 0, h.total(t, userId))
}

func TestOrchestrator_CancellationAfterCommitStillSucceeds(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.persistence.afterInsert = cancel

	res, err := h.orchestrator.Run(ctx, article(userId))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 2, res.Stats.New)
	assert.Equal(t, StateDone, res.Transitions[len(res.Transitions)-1].To)
	assert.Equal(t, 2, h.total(t, userId))
	assert.Equal(t, 2, h.persistence.count(userId))
}

func TestOrchestrator_ReplicasSharingALockSeeEachOthersCommits(t *testing.T) {
	log := logger.NewNopLogger()
	persistence := &memoryPersistence{rows: map[uuid.UUID][]*entity.Concept{}}
	locker := conceptstore.NewLocalLocker()
	embedder := &vectorEmbedder{vectors: map[string][]float32{
		"Consistent hashing": {1, 0},
		"Write-ahead log":    {0, 1},
	}}
	extractor := &stubExtractor{candidates: []digest.Candidate{
		{Name: "Consistent hashing", Domain: "distributed systems", Explanation: "Keys map to a ring of nodes."},
		{Name: "Write-ahead log", Domain: "databases", Explanation: "Changes are logged before they are applied."},
	}}
	replica := func() (*conceptstore.Store, *Orchestrator) {
		store := conceptstore.New(persistence, 2, log)
		return store, NewOrchestrator(Deps{
			Extractor:    extractor,
			Deduplicator: dedup.New(embedder, store, dedup.Config{Threshold: 0.6, RelatedThreshold: 0.45}, log),
			Personalizer: &stubPersonalizer{},
			Questions:    stubQuestions{},
			Store:        store,
			Profiles:     &stubProfiles{profiles: map[uuid.UUID]*entity.UserProfile{}},
			Locker:       locker,
			Refresher:    store,
			Logger:       log,
		}, 0)
	}
	storeA, a := replica()
	storeB, b := replica()
	userId := uuid.New()
	ctx := context.Background()

	_, err := storeB.List(ctx, userId, "")
	require.NoError(t, err)

	first, err := a.Run(ctx, article(userId))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.New)

	second, err := b.Run(ctx, article(userId))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.New)
	assert.Equal(t, 2, second.Stats.Known)
	assert.Equal(t, 2, persistence.count(userId))

	listed, err := storeA.List(ctx, userId, "")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestOrchestrator_UsersDoNotShareConcepts(t *testing.T) {
	h := newHarness(t)
	alice, bob := uuid.New(), uuid.New()

	_, err := h.orchestrator.Run(context.Background(), article(alice))
	require.NoError(t, err)
	res, err := h.orchestrator.Run(context.Background(), article(bob))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.New)
	assert.Equal(t, 2, h.total(t, alice))
	assert.Equal(t, 2, h.total(t, bob))
}

func TestOrchestrator_ProfileFallback(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()

	_, err := h.orchestrator.Run(context.Background(), article(userId))
	require.NoError(t, err)
	require.Len(t, h.personalizer.profiles, 1)
	assert.Equal(t, entity.GenericProfile(userId).Background, h.personalizer.profiles[0].Background)

	other := uuid.New()
	h.profiles.profiles[other] = &entity.UserProfile{UserId: other, Background: "backend engineer"}
	res, err := h.orchestrator.Run(context.Background(), article(other))
	require.NoError(t, err)
	assert.Contains(t, res.Concepts[0].Analogy, "backend engineer")
}

func TestOrchestrator_Failures(t *testing.T) {
	testCases := []struct {
		name      string
		setup     func(h *harness)
		req       func(userId uuid.UUID) Request
		wantStage State
		wantKind  apperr.Kind
	}{
		{
			name:      "extraction fails",
			setup:     func(h *harness) { h.extractor.err = apperr.Extraction("no concepts", nil) },
			req:       article,
			wantStage: StateExtracting,
			wantKind:  apperr.KindExtraction,
		},
		{
			name:      "profile store down",
			setup:     func(h *harness) { h.profiles.err = errors.New("db down") },
			req:       article,
			wantStage: StatePersonalizing,
			wantKind:  apperr.KindInternal,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)
			userId := uuid.New()

			_, err := h.orchestrator.Run(context.Background(), tc.req(userId))
			var runErr *RunError
			require.True(t, errors.As(err, &runErr))
			assert.Equal(t, tc.wantStage, runErr.Stage)
			assert.Equal(t, tc.wantKind, runErr.Kind)
			assert.Equal(t, 0, h.total(t, userId))
		})
	}
}

func TestOrchestrator_RejectsInvalidRequests(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.Run(context.Background(), Request{Text: "text"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.orchestrator.Run(context.Background(), Request{UserId: uuid.New(), Text: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestOrchestrator_ConcurrentRunsForOneUserAreSerialized(t *testing.T) {
	h := newHarness(t)
	userId := uuid.New()

	const runs = 4
	results := make([]*Result, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.orchestrator.Run(context.Background(), article(userId))
			if assert.NoError(t, err) {
				results[i] = res
			}
		}()
	}
	wg.Wait()

	newTotal := 0
	for _, res := range results {
		if res != nil {
			newTotal += res.Stats.New
		}
	}
	assert.Equal(t, 2, newTotal)
	assert.Equal(t, 2, h.total(t, userId))
}
