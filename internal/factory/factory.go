// Package factory wires configuration, clients, repositories, and the auth
// engines together and owns their shutdown order.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/client"
	"phone-auth-service/internal/config"
	"phone-auth-service/internal/credentials"
	"phone-auth-service/internal/events"
	redisrepo "phone-auth-service/internal/repository/redis"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/token"
	"phone-auth-service/internal/util"
)

type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.Client
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	bucketingManager *bucketing.Manager
	hasher           *credentials.Hasher
	signer           *token.Signer
	recorder         *events.Recorder

	// Stores
	userStore service.UserStore
	otpStore  service.OtpStore

	// Engines
	otpService     *service.OtpService
	loginService   *service.LoginService
	sessionService *service.SessionService

	closeOnce sync.Once
}

// NewFactory loads configuration, connects every client, and builds the
// engines. Scylla and Redis are required; Kafka and ClickHouse degrade to a
// warning outside production since the event sinks are best effort.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeEngines(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize engines: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", f.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", f.clickhouseClient != nil),
	)
	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scyllaClient, err := scylla.NewClient(f.config)
		if err != nil {
			return fmt.Errorf("scylla: %w", err)
		}
		if err := scyllaClient.HealthCheck(gctx); err != nil {
			scyllaClient.Close()
			return fmt.Errorf("scylla health check: %w", err)
		}
		f.scyllaClient = scyllaClient
		return nil
	})

	g.Go(func() error {
		redisClient, err := client.NewRedisClient(f.config)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = redisClient
		return nil
	})

	g.Go(func() error {
		producer, err := client.NewKafkaProducer(f.config)
		if err == nil {
			err = producer.HealthCheck(gctx)
		}
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("kafka: %w", err)
			}
			util.Warn("Kafka unavailable, security events will not be published", util.ErrorField(err))
			return nil
		}
		f.kafkaProducer = producer
		return nil
	})

	g.Go(func() error {
		clickhouseClient, err := client.NewClickHouseClient(f.config)
		if err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("clickhouse: %w", err)
			}
			util.Warn("ClickHouse unavailable, security events will not be stored", util.ErrorField(err))
			return nil
		}
		f.clickhouseClient = clickhouseClient
		return nil
	})

	return g.Wait()
}

func (f *Factory) initializeEngines() error {
	cfg := f.config

	f.bucketingManager = bucketing.NewManager(cfg.Bucketing.UserBuckets, cfg.Bucketing.PhoneBuckets)
	f.hasher = credentials.NewHasher(cfg.Auth.BcryptCost)
	f.recorder = events.NewRecorder(f.kafkaProducer, f.clickhouseClient)

	signer, err := token.NewSigner(
		cfg.Auth.AccessTokenSecret, cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		return fmt.Errorf("token signer: %w", err)
	}
	f.signer = signer

	userRepo := scylla.NewUserRepository(f.scyllaClient, f.bucketingManager)
	f.userStore = redisrepo.NewCachedUserStore(userRepo, f.redisClient.Client, cfg.Redis.CacheTTL)
	f.otpStore = scylla.NewOtpRepository(f.scyllaClient, f.bucketingManager)

	f.sessionService = service.NewSessionService(f.userStore, f.signer, service.SystemClock, f.recorder)
	f.loginService = service.NewLoginService(f.userStore, f.hasher, f.sessionService, service.SystemClock, f.recorder)
	f.otpService = service.NewOtpService(f.userStore, f.otpStore, f.hasher,
		f.sessionService, cfg.Auth.OTPWindow, service.SystemClock, f.recorder)

	return nil
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) OtpService() *service.OtpService { return f.otpService }

func (f *Factory) LoginService() *service.LoginService { return f.loginService }

func (f *Factory) SessionService() *service.SessionService { return f.sessionService }

// HealthCheck probes every connected client.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	// Event sinks are best effort and do not gate readiness.
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		// The recorder flushes its buffer, so it goes before the sinks.
		if f.recorder != nil {
			f.recorder.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
	})
}
