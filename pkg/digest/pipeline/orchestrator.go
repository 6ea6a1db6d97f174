package pipeline

import (
	"concept-digest-be/internal/entity"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/apperr"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/dedup"
	"concept-digest-be/pkg/digest/extract"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Extractor interface {
	Extract(ctx context.Context, text string) (*extract.Result, error)
}

type Deduplicator interface {
	Run(ctx context.Context, userId uuid.UUID, candidates []digest.Candidate, threshold float64) (*dedup.Result, error)
}

type Personalizer interface {
	Run(ctx context.Context, profile *entity.UserProfile, concepts []digest.Concept) ([]digest.Concept, error)
}

type QuestionGenerator interface {
	Generate(ctx context.Context, sections []digest.Section, concepts []digest.Concept) ([]digest.Question, error)
}

type Committer interface {
	Commit(ctx context.Context, userId uuid.UUID, concepts []*entity.Concept) error
}

// Refresher reloads a user's concepts from shared persistence. Set it when
// the run lock is shared with other processes.
type Refresher interface {
	Refresh(ctx context.Context, userId uuid.UUID) error
}

// ProfileSource returns the user's profile or an apperr.KindProfileMissing
// error when there is none.
type ProfileSource interface {
	Profile(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error)
}

type Deps struct {
	Extractor    Extractor
	Deduplicator Deduplicator
	Personalizer Personalizer
	Questions    QuestionGenerator
	Store        Committer
	Profiles     ProfileSource
	Locker       conceptstore.Locker
	Refresher    Refresher
	Logger       logger.ILogger
	Observers    []Observer
}

type Orchestrator struct {
	deps       Deps
	observer   multiObserver
	runTimeout time.Duration
	tracer     trace.Tracer
	now        func() time.Time
}

func NewOrchestrator(deps Deps, runTimeout time.Duration) *Orchestrator {
	if deps.Locker == nil {
		deps.Locker = conceptstore.NewLocalLocker()
	}
	return &Orchestrator{
		deps:       deps,
		observer:   multiObserver(deps.Observers),
		runTimeout: runTimeout,
		tracer:     otel.Tracer("concept-digest/pipeline"),
		now:        time.Now,
	}
}

// Run executes one article for one user. Stages run strictly in sequence;
// the user's run lock is held from dedup through commit so a dedup read
// always sees every earlier committed run. Any failure before commit
// leaves the store untouched.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.UserId == uuid.Nil {
		return nil, apperr.Validation("user id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperr.Validation("article text is empty")
	}

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	run := newRun(req.UserId, o.now)
	ctx, span := o.tracer.Start(ctx, "digest.run", trace.WithAttributes(
		attribute.String("run.id", run.Id.String()),
		attribute.String("user.id", req.UserId.String()),
		attribute.String("source.type", req.SourceType),
	))
	defer span.End()

	res := &Result{
		RunId:     run.Id,
		Title:     req.Title,
		SourceURL: req.SourceURL,
	}

	err := o.execute(ctx, run, req, res)
	if err != nil {
		stage := run.State
		run.moveTo(StateFailed)
		runErr := &RunError{RunID: run.Id, Stage: stage, Kind: apperr.KindOf(err), Err: err}
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(runErr.Kind))
		o.observer.RunFinished(run, nil, runErr)
		return nil, runErr
	}

	run.moveTo(StateDone)
	res.Transitions = run.Transitions()
	span.SetAttributes(
		attribute.Int("concepts.new", res.Stats.New),
		attribute.Int("concepts.known", res.Stats.Known),
	)
	o.observer.RunFinished(run, res, nil)
	return res, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, req Request, res *Result) error {
	var extracted *extract.Result
	err := o.stage(ctx, run, StateExtracting, func(ctx context.Context) error {
		var err error
		extracted, err = o.deps.Extractor.Extract(ctx, req.Text)
		return err
	})
	if err != nil {
		return err
	}
	res.Sections = extracted.Sections
	res.Dropped = append(res.Dropped, extracted.Dropped...)

	var unlock func()
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	var deduped *dedup.Result
	err = o.stage(ctx, run, StateDeduplicating, func(ctx context.Context) error {
		var err error
		unlock, err = o.deps.Locker.Lock(ctx, req.UserId)
		if err != nil {
			return fmt.Errorf("acquire run lock: %w", err)
		}
		if o.deps.Refresher != nil {
			if err := o.deps.Refresher.Refresh(ctx, req.UserId); err != nil {
				return fmt.Errorf("refresh concept partition: %w", err)
			}
		}
		deduped, err = o.deps.Deduplicator.Run(ctx, req.UserId, extracted.Candidates, req.Threshold)
		return err
	})
	if err != nil {
		return err
	}
	res.Dropped = append(res.Dropped, deduped.Dropped...)
	concepts := deduped.Concepts

	err = o.stage(ctx, run, StatePersonalizing, func(ctx context.Context) error {
		if len(deduped.New()) == 0 {
			return nil
		}
		profile, err := o.profile(ctx, req.UserId)
		if err != nil {
			return err
		}
		concepts, err = o.deps.Personalizer.Run(ctx, profile, concepts)
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, run, StateGeneratingQuestions, func(ctx context.Context) error {
		var err error
		res.Questions, err = o.deps.Questions.Generate(ctx, res.Sections, concepts)
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(ctx, run, StateCommitting, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var batch []*entity.Concept
		var positions []int
		for i, c := range concepts {
			if c.Status != digest.StatusNew {
				continue
			}
			batch = append(batch, &entity.Concept{
				Name:        c.Name,
				Domain:      c.Domain,
				Embedding:   c.Embedding,
				Explanation: c.Explanation,
				Analogy:     c.Analogy,
				Source:      req.Title,
				SourceUrl:   req.SourceURL,
				RunId:       run.Id,
			})
			positions = append(positions, i)
		}
		if err := o.deps.Store.Commit(ctx, req.UserId, batch); err != nil {
			return err
		}
		for j, i := range positions {
			concepts[i].Id = batch[j].Id
		}
		return nil
	})
	if err != nil {
		return err
	}

	res.Concepts = concepts
	for _, c := range concepts {
		if c.Status == digest.StatusNew {
			res.Stats.New++
		} else {
			res.Stats.Known++
		}
	}
	res.Stats.Dropped = len(res.Dropped)
	return nil
}

func (o *Orchestrator) profile(ctx context.Context, userId uuid.UUID) (*entity.UserProfile, error) {
	profile, err := o.deps.Profiles.Profile(ctx, userId)
	if err == nil && profile != nil {
		return profile, nil
	}
	if err != nil && !apperr.Is(err, apperr.KindProfileMissing) {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	o.deps.Logger.Warn("PIPELINE", "No profile for user, using generic reader", map[string]interface{}{
		"user_id": userId.String(),
	})
	return entity.GenericProfile(userId), nil
}

func (o *Orchestrator) stage(ctx context.Context, run *Run, state State, fn func(context.Context) error) error {
	run.moveTo(state)
	o.observer.StageStarted(run, state)

	ctx, span := o.tracer.Start(ctx, "digest."+string(state))
	start := o.now()
	err := fn(ctx)
	// Once Commit has returned nil the batch is durable and the run is done.
	if err == nil && state != StateCommitting && ctx.Err() != nil {
		err = ctx.Err()
	}
	elapsed := o.now().Sub(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	o.observer.StageFinished(run, state, elapsed, err)
	return err
}
