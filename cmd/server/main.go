// Command server runs the identity resolution and consolidation engine:
// collector ingestion, the resolution pipeline, the tiered cache with its
// sweep and schedule loops, the Kafka event surfaces, and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"platbook/internal/cache"
	"platbook/internal/cache/dispatch"
	cachehandler "platbook/internal/cache/handler"
	cachestore "platbook/internal/cache/store"
	"platbook/internal/collector"
	"platbook/internal/enrich"
	enrichhandler "platbook/internal/enrich/handler"
	"platbook/internal/journal"
	journalstore "platbook/internal/journal/store"
	"platbook/internal/jwttoken"
	listinghandler "platbook/internal/listing/handler"
	listingstore "platbook/internal/listing/store"
	"platbook/internal/pipeline"
	"platbook/internal/platform/config"
	"platbook/internal/platform/httpserver"
	"platbook/internal/platform/kafka"
	"platbook/internal/platform/logger"
	"platbook/internal/platform/metrics"
	"platbook/internal/platform/postgres"
	redisplatform "platbook/internal/platform/redis"
	"platbook/internal/policy"
	propertyhandler "platbook/internal/property/handler"
	properties "platbook/internal/property/models"
	propertystore "platbook/internal/property/store"
	"platbook/internal/report"
	reporthandler "platbook/internal/report/handler"
	"platbook/internal/review"
	reviewhandler "platbook/internal/review/handler"
	reviewstore "platbook/internal/review/store"
	"platbook/internal/shadow"
	shadowstore "platbook/internal/shadow/store"
	httptransport "platbook/internal/transport/http"
	"platbook/internal/verify"
)

// propertyStore is the union of what the pipeline, the handlers and the
// report read from entity persistence. Both backends implement it.
type propertyStore interface {
	pipeline.PropertyStore
	report.PropertyCounter
	ListPage(ctx context.Context, q propertystore.ListQuery) ([]*properties.PropertyEntity, string, error)
}

type journalStore interface {
	journal.Store
	report.JournalCounter
}

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("engine exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	redisClient, err := redisplatform.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		listings pipeline.ListingStore
		props    propertyStore
		reviews  review.Store
		jstore   journalStore
		groups   shadow.GroupStore
	)
	if db != nil {
		ls := listingstore.NewPostgres(db)
		ps := propertystore.NewPostgres(db)
		rs := reviewstore.NewPostgres(db)
		js := journalstore.NewPostgres(db)
		gs := shadowstore.NewPostgres(db)
		for _, m := range []interface {
			Migrate(ctx context.Context) error
		}{ls, ps, rs, js, gs} {
			if err := m.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate schema: %w", err)
			}
		}
		listings, props, reviews, jstore, groups = ls, ps, rs, js, gs
		log.Info("stores backed by postgres")
	} else {
		listings = listingstore.NewMemory()
		props = propertystore.NewMemory()
		reviews = reviewstore.NewMemory()
		jstore = journalstore.NewMemory()
		groups = shadowstore.NewMemory()
		log.Warn("no postgres DSN configured, stores are in memory")
	}

	var entries cache.EntryStore = cachestore.NewMemory()
	if redisClient != nil {
		entries = cachestore.NewRedis(redisClient.Client)
		log.Info("cache entries backed by redis")
	}

	producer, err := kafka.NewClient(cfg.KafkaBrokers)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		if err := kafka.EnsureTopics(ctx, producer,
			kafka.TopicInvalidationEvents,
			kafka.TopicRefreshRequests,
			kafka.TopicVerificationRequests,
			kafka.TopicVerificationResults,
		); err != nil {
			return err
		}
	}

	jpub := journal.NewPublisher(jstore,
		journal.WithAsyncBuffer(1024),
		journal.WithPublisherLogger(log))
	defer jpub.Close()

	var dispatcher cache.Dispatcher = dispatch.NewLocal(log)
	if producer != nil {
		dispatcher = dispatch.NewKafka(producer,
			dispatch.WithLogger(log),
			dispatch.WithRateLimit(cfg.RefreshRate, cfg.RefreshBurst))
	}
	manager := cache.NewManager(entries, dispatcher, pol,
		cache.WithLogger(log), cache.WithJournal(jpub))

	pipe := pipeline.New(listings, props, shadow.NewManager(groups), pol,
		pipeline.WithLogger(log),
		pipeline.WithWorkers(cfg.PipelineWorkers),
		pipeline.WithCache(manager),
		pipeline.WithJournal(jpub))

	reviewSvc := review.NewService(reviews, pipe,
		review.WithLogger(log), review.WithJournal(jpub))
	pipe.AttachReviewQueue(reviewSvc)

	var verifyPublisher verify.RequestPublisher = verify.NewLocalPublisher(log)
	if producer != nil {
		verifyPublisher = verify.NewKafkaPublisher(producer)
	}
	verifySvc := verify.NewService(props, pipe, manager, verifyPublisher, pol,
		verify.WithLogger(log), verify.WithJournal(jpub))
	pipe.AttachVerifier(verifySvc)

	enrichSvc := enrich.NewService(props, pipe, enrich.WithLogger(log))
	reportSvc := report.NewService(props, reviews, entries, jstore, report.WithLogger(log))

	if err := pipe.RebuildIndex(ctx); err != nil {
		return err
	}

	registry, err := collector.NewRegistry(pol.Collectors)
	if err != nil {
		return fmt.Errorf("collector registry: %w", err)
	}
	tokens := jwttoken.NewService(cfg.JWTSigningKey, "platbook")

	router := httptransport.NewRouter(httptransport.Config{
		Logger:      log,
		Metrics:     metrics.New(),
		Collectors:  registry,
		Reviewers:   jwttoken.NewServiceAdapter(tokens),
		AdminToken:  cfg.AdminToken,
		Listings:    listinghandler.New(pipe, log),
		Properties:  propertyhandler.New(props, listings, manager, log),
		Reviews:     reviewhandler.New(reviewSvc, log),
		Enrichments: enrichhandler.New(enrichSvc, log),
		Events:      cachehandler.New(manager, log),
		Reports:     reporthandler.New(reportSvc, log),
		Ready: func(ctx context.Context) error {
			if db != nil {
				if err := db.PingContext(ctx); err != nil {
					return fmt.Errorf("postgres: %w", err)
				}
			}
			if redisClient != nil {
				if err := redisClient.Health(ctx); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("engine listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := manager.Sweep(gctx); err != nil {
					log.Error("cache sweep failed", slog.Any("error", err))
				}
			}
		}
	})

	scheduler := cache.NewScheduler(manager, cache.WithSchedulerLogger(log))
	g.Go(func() error { return scheduler.Run(gctx) })

	if len(cfg.KafkaBrokers) > 0 {
		eventsClient, err := kafka.NewClient(cfg.KafkaBrokers,
			kgo.ConsumerGroup(cfg.KafkaGroup+".invalidation"),
			kgo.ConsumeTopics(kafka.TopicInvalidationEvents))
		if err != nil {
			return err
		}
		defer eventsClient.Close()
		events := cache.NewEventConsumer(eventsClient, manager, log)
		g.Go(func() error { return events.Run(gctx) })

		resultsClient, err := kafka.NewClient(cfg.KafkaBrokers,
			kgo.ConsumerGroup(cfg.KafkaGroup+".verification"),
			kgo.ConsumeTopics(kafka.TopicVerificationResults))
		if err != nil {
			return err
		}
		defer resultsClient.Close()
		results := verify.NewResultConsumer(resultsClient, verifySvc, log)
		g.Go(func() error { return results.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("engine stopped")
	return nil
}
