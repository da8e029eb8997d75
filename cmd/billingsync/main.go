package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/farhadimrf/spotify-clone/internal/pkg/billing"
	"github.com/farhadimrf/spotify-clone/internal/pkg/cache"
	"github.com/farhadimrf/spotify-clone/internal/pkg/database"
	"github.com/farhadimrf/spotify-clone/internal/pkg/env"
	"github.com/farhadimrf/spotify-clone/internal/pkg/router"
)

func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, error) {
	env.SetupEnvFile()
	if !env.IsDev() {
		log.SetLevel(log.LevelInfo)
	}

	cfg, err := billing.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("billing config: %w", err)
	}

	db, err := database.SetupDatabase()
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	opts := router.Options{
		MetricsUser:     env.GetEnv("METRICS_USER", "admin"),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var locker billing.KeyedLocker
	switch cfg.LockBackend {
	case billing.LockBackendRedis:
		client := cache.SetupCache()
		locker = billing.NewRedisLocker(client, cfg.LockTTL)
		opts.LimiterStorage = cache.NewLimiterStorage()
		pingDB := opts.Ready
		opts.Ready = func() error {
			if err := pingDB(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return cache.Ping(ctx)
		}
	default:
		log.Warn("[Billing] Using in-process locks, run a single instance only")
		locker = billing.NewMemoryLocker()
	}

	provider := billing.NewStripeProvider(cfg.StripeSecretKey)
	svc := billing.NewServiceFromDB(db, provider, locker, cfg)

	// find the project root for static assets
	basePaths := []string{
		"./",
		"../../",
		"../../../",
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "billingsync",
		BodyLimit: 1 << 20, // provider events are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Warn("openapi.yml not found, /docs/api/v1 is disabled")
	}

	// ROUTER
	router.InstallRouter(app, svc, opts)

	log.Infow("[Billing] Service ready", "lock_backend", cfg.LockBackend, "site_url", cfg.SiteURL, "reject_stale_events", cfg.RejectStaleEvents)
	return app, nil
}
