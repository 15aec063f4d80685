package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/internal/logger"
	"github.com/pathlearn/authguard/pkg/challenge"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/infra/metrics"
	"github.com/pathlearn/authguard/pkg/infra/repository"
	"github.com/pathlearn/authguard/pkg/middleware"
	"github.com/pathlearn/authguard/pkg/security"
	"github.com/pathlearn/authguard/pkg/types"
)

const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load(os.Getenv("AUTHGUARD_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	opts := []security.Option{security.WithMetrics(recorder)}

	// Persistence is opt-in: without a database name the event history
	// stays in memory only.
	if cfg.Database.DBName != "" {
		db, err := repository.NewPostgresDB(cfg.Database)
		if err != nil {
			logr.WithError(err).Fatal("failed to open threat event database")
		}
		opts = append(opts, security.WithEventSink(repository.NewThreatEventRepository(db)))
	}

	orchestrator := security.NewOrchestrator(cfg, logr, opts...)
	generator := challenge.NewGenerator(newAnswerStore(cfg, logr), cfg.Captcha.AnswerTTL, logr, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator.StartSweeper(ctx, sweepInterval)

	app := buildApp(logr, orchestrator, generator, registry)

	go func() {
		addr := os.Getenv("AUTHGUARD_LISTEN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		if err := app.Listen(addr); err != nil {
			logr.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logr.WithError(err).Error("shutdown failed")
	}
}

// newAnswerStore prefers Redis so challenges verify across instances,
// falling back to the in-process store when Redis is unreachable.
func newAnswerStore(cfg *config.Config, logr *logrus.Logger) challenge.AnswerStore {
	if cfg.Redis.Host == "" {
		return challenge.NewMemoryStore(cfg.Captcha.AnswerTTL)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logr.WithError(err).Warn("redis unreachable, captcha answers stay in memory")
		return challenge.NewMemoryStore(cfg.Captcha.AnswerTTL)
	}
	return challenge.NewRedisStore(client)
}

func buildApp(
	logr *logrus.Logger,
	orchestrator *security.Orchestrator,
	generator *challenge.Generator,
	registry *prometheus.Registry,
) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "authguard",
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	app.Post("/captcha", func(c *fiber.Ctx) error {
		captcha, err := generator.NewCaptcha(c.UserContext())
		if err != nil {
			logr.WithError(err).Error("failed to create captcha")
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(captcha)
	})

	app.Post("/captcha/verify", func(c *fiber.Ctx) error {
		var body struct {
			ID     string `json:"id"`
			Answer string `json:"answer"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
		return c.JSON(fiber.Map{
			"valid": generator.Verify(c.UserContext(), body.ID, body.Answer),
		})
	})

	app.Get("/honeypot", func(c *fiber.Ctx) error {
		return c.JSON(challenge.NewHoneypot())
	})

	guard := middleware.NewSecurityMiddleware(logr, orchestrator, nil)
	app.Post("/auth/:action", guard.Middleware(), func(c *fiber.Ctx) error {
		result, _ := c.Locals(middleware.ResultLocalsKey).(*types.SecurityCheckResult)
		return c.JSON(result)
	})

	return app
}
