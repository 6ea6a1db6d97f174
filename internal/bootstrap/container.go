package bootstrap

import (
	"context"

	"concept-digest-be/internal/config"
	"concept-digest-be/internal/controller"
	"concept-digest-be/internal/handler"
	"concept-digest-be/internal/observability"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/internal/repository/contract"
	"concept-digest-be/internal/repository/implementation"
	"concept-digest-be/internal/repository/memory"
	"concept-digest-be/internal/repository/unitofwork"
	"concept-digest-be/internal/service"
	"concept-digest-be/internal/websocket"
	"concept-digest-be/pkg/article"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/digest/dedup"
	"concept-digest-be/pkg/digest/extract"
	"concept-digest-be/pkg/digest/personalize"
	"concept-digest-be/pkg/digest/pipeline"
	"concept-digest-be/pkg/digest/question"

	pktNats "concept-digest-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DigestController  controller.IDigestController
	ConceptController controller.IConceptController
	ProfileController controller.IProfileController
	ProgressHandler   *handler.ProgressHandler

	// Services (the CLI uses these directly)
	DigestService  service.IDigestService
	ConceptService service.IConceptService
	ProfileService service.IProfileService

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Metrics     *observability.Collector
	ProgressHub *websocket.Hub
	Logger      logger.ILogger

	closers []func()
}

// NewContainer wires the application. db may be nil when
// STORE_BACKEND=memory.
func NewContainer(db *gorm.DB, cfg *config.Config, sysLogger logger.ILogger) (*Container, error) {
	c := &Container{Logger: sysLogger}

	// 1. Providers
	embeddingProvider, err := NewEmbeddingProvider(cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	llmProvider, err := NewLLMProvider(cfg, sysLogger)
	if err != nil {
		return nil, err
	}

	// 2. Storage
	var persistence conceptstore.Persistence
	var profileRepo contract.UserProfileRepository
	if cfg.Store.Backend == "memory" || db == nil {
		profileRepo = memory.NewUserProfileRepository()
		sysLogger.Warn("BOOTSTRAP", "Running with in-memory storage, nothing survives a restart", nil)
	} else {
		uowFactory := unitofwork.NewRepositoryFactory(db)
		persistence = service.NewConceptPersistence(uowFactory)
		profileRepo = implementation.NewUserProfileRepository(db)
	}
	locker, rdb, err := NewLocker(cfg, sysLogger)
	if err != nil {
		return nil, err
	}
	var storeOpts []conceptstore.Option
	var refresher pipeline.Refresher
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		if persistence == nil {
			sysLogger.Warn("BOOTSTRAP", "Redis run lock with in-memory storage, replicas will not share concepts", nil)
		}
		storeOpts = append(storeOpts, conceptstore.WithMaxStaleness(cfg.Store.MaxStaleness))
	}
	store := conceptstore.New(persistence, cfg.Store.EmbeddingDimension, sysLogger, storeOpts...)
	if rdb != nil {
		refresher = store
	}

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var eventPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to connect to NATS publisher", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			eventPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	// 4. Pipeline
	normalizer := digest.NewDomainNormalizer(cfg.Pipeline.DomainAliases)
	c.Metrics = observability.NewCollector("concept_digest")
	c.ProgressHub = websocket.NewHub(rdb, sysLogger)
	c.ProfileService = service.NewProfileService(profileRepo)

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Extractor: extract.New(llmProvider, normalizer, extract.Config{
			MinSections:     cfg.Pipeline.MinSections,
			MaxSections:     cfg.Pipeline.MaxSections,
			MaxConcepts:     cfg.Pipeline.MaxConcepts,
			MaxArticleChars: cfg.Pipeline.MaxArticleChars,
		}, sysLogger),
		Deduplicator: dedup.New(embeddingProvider, store, dedup.Config{
			Threshold:        cfg.Pipeline.SimilarityThreshold,
			RelatedThreshold: cfg.Pipeline.RelatedThreshold,
		}, sysLogger),
		Personalizer: personalize.New(llmProvider, cfg.Pipeline.PersonalizeConcurrency, sysLogger),
		Questions:    question.New(llmProvider, cfg.Pipeline.QuestionCount, sysLogger),
		Store:        store,
		Profiles:     c.ProfileService,
		Locker:       locker,
		Refresher:    refresher,
		Logger:       sysLogger,
		Observers:    []pipeline.Observer{pipeline.NewLogObserver(sysLogger), c.Metrics, c.ProgressHub},
	}, cfg.Pipeline.RunTimeout)

	// 5. Services
	c.ConceptService = service.NewConceptService(store, embeddingProvider, normalizer, sysLogger)
	publisherService := service.NewPublisherService(cfg.App.DigestTopic, pubSub)
	c.DigestService = service.NewDigestService(
		orchestrator,
		article.NewHTMLFetcher(nil),
		publisherService,
		c.ConceptService,
		sysLogger,
	)
	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.App.DigestTopic,
		c.ConceptService,
		eventPublisher,
		sysLogger,
	)

	// 6. Controllers
	c.DigestController = controller.NewDigestController(c.DigestService)
	c.ConceptController = controller.NewConceptController(c.ConceptService)
	c.ProfileController = controller.NewProfileController(c.ProfileService)
	c.ProgressHandler = handler.NewProgressHandler(c.ProgressHub, sysLogger)

	return c, nil
}

// Start launches background consumers and the progress relay. Both stop
// with ctx.
func (c *Container) Start(ctx context.Context) error {
	go c.ProgressHub.Run(ctx)
	return c.ConsumerService.Consume(ctx)
}

func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}
