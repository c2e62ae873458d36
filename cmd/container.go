// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, email) and composes
// the IAM container. This is the only place that knows about everything.
package main

import (
	"context"

	"github.com/Abraxas-365/cabina/migrations/postgres"
	"github.com/Abraxas-365/cabina/pkg/config"
	"github.com/Abraxas-365/cabina/pkg/iam/auth/authsrv"
	"github.com/Abraxas-365/cabina/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/cabina/pkg/jobx"
	"github.com/Abraxas-365/cabina/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/cabina/pkg/logx"
	"github.com/Abraxas-365/cabina/pkg/notifx"
	"github.com/Abraxas-365/cabina/pkg/notifx/notifxconsole"
	"github.com/Abraxas-365/cabina/pkg/notifx/notifxses"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB       *sqlx.DB
	Redis    *redis.Client
	Notifier *notifx.Client
	JobQueue *jobxredis.RedisQueue

	// Bounded-context containers
	IAM *iamcontainer.Container

	jobsCancel context.CancelFunc
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis, email
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	// 1. Database
	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("  ✅ Database connected")

	if c.Config.Database.AutoMigrate {
		if err := postgres.Apply(context.Background(), c.DB); err != nil {
			logx.Fatalf("Failed to apply migrations: %v", err)
		}
		logx.Info("  ✅ Migrations applied")
	}

	// 2. Redis (optional; the IAM container falls back to memory)
	if c.Config.Redis.Enabled {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Address(),
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v", err)
		}
		c.JobQueue = jobxredis.NewRedisQueue(c.Redis)
		logx.Info("  ✅ Redis connected")
	} else {
		logx.Warn("  ⚠️ Redis disabled; refresh-token revocations are in-memory only")
	}

	// 3. Email provider
	c.initEmail()

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initEmail() {
	switch c.Config.Email.Provider {
	case "ses":
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
			awsConfig.WithRegion(c.Config.Email.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		provider := notifxses.NewSESProvider(ses.NewFromConfig(awsCfg), c.Config.Email.FromAddress)
		c.Notifier = notifx.NewClient(provider)
		logx.Infof("  ✅ SES email provider configured (region: %s)", c.Config.Email.AWSRegion)

	case "console":
		c.Notifier = notifx.NewClient(notifxconsole.NewConsoleProvider())
		logx.Info("  ✅ Console email provider configured (dev mode)")

	default:
		logx.Fatalf("Unknown EMAIL_PROVIDER: %s (use 'console' or 'ses')", c.Config.Email.Provider)
	}
}

// ---------------------------------------------------------------------------
// Module composition — each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	// A typed-nil queue must not become a non-nil interface.
	var jobs jobx.Enqueuer
	if c.JobQueue != nil {
		jobs = c.JobQueue
	}

	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:       c.DB,
		Redis:    c.Redis,
		Cfg:      c.Config,
		Notifier: c.Notifier,
		Jobs:     jobs,
	})
	logx.Info("  ✅ IAM module initialized")

	c.startJobWorker()
}

// startJobWorker runs the email delivery worker against the Redis queue.
// Without Redis the auth service delivers emails in-process, so there is
// nothing to start.
func (c *Container) startJobWorker() {
	if c.JobQueue == nil {
		return
	}

	worker := jobx.NewWorker(c.JobQueue, jobx.Options{
		Queues:      []string{authsrv.EmailQueue},
		Concurrency: 2,
	})
	worker.Register(authsrv.WelcomeEmailJobType, c.IAM.AuthService.HandleWelcomeEmailJob)

	ctx, cancel := context.WithCancel(context.Background())
	c.jobsCancel = cancel
	go func() {
		if err := worker.Start(ctx); err != nil {
			logx.Errorf("Job worker stopped: %v", err)
		}
	}()
	logx.Info("  ✅ Email job worker started")
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.jobsCancel != nil {
		c.jobsCancel()
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
