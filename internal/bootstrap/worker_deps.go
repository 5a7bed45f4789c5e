package bootstrap

import (
	"context"
	"os"
	"time"

	"github.com/mailkeeper/agent/adapter/out/authstate"
	"github.com/mailkeeper/agent/adapter/out/calendar"
	"github.com/mailkeeper/agent/adapter/out/llm"
	"github.com/mailkeeper/agent/adapter/out/messaging"
	"github.com/mailkeeper/agent/adapter/out/mongodb"
	"github.com/mailkeeper/agent/adapter/out/provider"
	"github.com/mailkeeper/agent/adapter/out/realtime"
	"github.com/mailkeeper/agent/config"
	"github.com/mailkeeper/agent/core/port/out"
	"github.com/mailkeeper/agent/pkg/cache"
	"github.com/mailkeeper/agent/core/service/actionqueue"
	"github.com/mailkeeper/agent/core/service/analyzer"
	"github.com/mailkeeper/agent/core/service/classifier"
	"github.com/mailkeeper/agent/core/service/feedback"
	"github.com/mailkeeper/agent/core/service/memory"
	"github.com/mailkeeper/agent/core/service/pipeline"
	"github.com/mailkeeper/agent/core/service/reasoning"
	"github.com/mailkeeper/agent/core/service/retrain"
	realtimesvc "github.com/mailkeeper/agent/core/service/realtime"
	"github.com/mailkeeper/agent/core/service/scheduler"
	"github.com/mailkeeper/agent/core/service/suggestion"
	"github.com/mailkeeper/agent/infra/database"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// Dependencies wires every adapter and core/service used by both the API
// and worker processes (§4.S "-mode=api|worker|all"). NewAPI and NewWorker
// each call NewDependencies, so each entry point builds its own instance.
type Dependencies struct {
	Mongo *mongodriver.Client
	Redis *redis.Client

	DocumentStore out.DocumentStore
	BlobStore     out.BlobStore

	Mail     out.MailProviderPort
	LLM      out.LLMPort
	Calendar out.CalendarPort

	Producer out.MessageProducer
	Consumer out.MessageConsumer

	Realtime *realtimesvc.Broadcaster
	SSE      *realtime.SSEAdapter
	SSEHub   *realtime.SSEHub

	Analyzer   *analyzer.Analyzer
	Classifier *classifier.Classifier
	Engine     *reasoning.Engine
	Suggester  *suggestion.Generator
	Memory     *memory.Memory
	Feedback   *feedback.Intake

	Pipeline    *pipeline.Pipeline
	ActionQueue *actionqueue.Queue
	Scheduler   *scheduler.Scheduler
	Retrain     *retrain.Controller
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx := context.Background()

	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
	if err != nil {
		return nil, nil, err
	}
	mongoDB := mongoClient.Database(cfg.MongoDBName)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	docStore := mongodb.NewStore(mongoDB)
	if err := docStore.EnsureIndexes(ctx); err != nil {
		return nil, nil, err
	}
	blobStore, err := mongodb.NewBlobStore(mongoDB)
	if err != nil {
		return nil, nil, err
	}

	tokenStore := authstate.New(docStore)
	gmail := provider.NewGmailAdapter(provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, tokenStore)

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)

	calendarAdapter := calendar.NewDraftRecorder(docStore)

	producer := messaging.NewRedisProducer(redis)
	consumer := messaging.NewConsumer(redis, messaging.ConsumerConfig{
		Group:    "mailagent-workers",
		Consumer: cfg.WorkerID,
		Streams: []string{
			string(out.JobProcessInbox),
			string(out.JobActionExecute),
			string(out.JobSchedulerTick),
		},
		Logger:               zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("component", "stream_consumer").Logger(),
		PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
		MaxRetries:           cfg.ConsumerMaxRetries,
	})

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("component", "sse").Logger()
	sseAdapter := realtime.NewSSEAdapter(zlog)
	sseHub := realtime.NewSSEHub(sseAdapter, zlog)
	broadcaster := realtimesvc.New(sseAdapter, docStore)

	redisCache := cache.NewRedisCache(redis)

	an := analyzer.New(llmClient, analyzer.Config{})
	clf := classifier.New()
	engine := reasoning.New(an, clf, reasoning.Config{})
	suggester := suggestion.New(llmClient)
	mem := memory.New(docStore).WithCache(redisCache)
	fb := feedback.New(docStore).WithCache(redisCache)

	actionQueue := actionqueue.New(docStore, gmail, producer)

	pipe := pipeline.New(gmail, docStore, llmClient, engine, an, suggester, mem, fb, actionQueue, broadcaster)

	sched := scheduler.New(gmail, docStore, calendarAdapter, an, suggester, mem, actionQueue, broadcaster, scheduler.Config{})

	retrainCtl := retrain.New(docStore, blobStore, clf, broadcaster, cfg.RetrainFeedbackCount)

	deps := &Dependencies{
		Mongo:         mongoClient,
		Redis:         redis,
		DocumentStore: docStore,
		BlobStore:     blobStore,
		Mail:          gmail,
		LLM:           llmClient,
		Calendar:      calendarAdapter,
		Producer:      producer,
		Consumer:      consumer,
		Realtime:      broadcaster,
		SSE:           sseAdapter,
		SSEHub:        sseHub,
		Analyzer:      an,
		Classifier:    clf,
		Engine:        engine,
		Suggester:     suggester,
		Memory:        mem,
		Feedback:      fb,
		Pipeline:      pipe,
		ActionQueue:   actionQueue,
		Scheduler:     sched,
		Retrain:       retrainCtl,
	}

	cleanup := func() {
		_ = mongoClient.Disconnect(context.Background())
		_ = redis.Close()
	}

	return deps, cleanup, nil
}
