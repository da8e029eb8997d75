package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter installs the operational routes: health and metrics.
type HttpRouter struct {
	opts Options
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/readyz", func(c *fiber.Ctx) error {
		if h.opts.Ready != nil {
			if err := h.opts.Ready(); err != nil {
				log.Warnw("readiness check failed", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.opts.MetricsPassword == "" {
		log.Warn("METRICS_PASSWORD not set, /metrics is disabled")
		return
	}
	user := h.opts.MetricsUser
	if user == "" {
		user = "admin"
	}
	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			user: h.opts.MetricsPassword,
		},
	})

	// prometheus exposition
	app.Get("/metrics", auth, adaptor.HTTPHandler(promhttp.Handler()))
	// fiber runtime monitor
	app.Get("/monitor", auth, monitor.New())
}

func NewHttpRouter(opts Options) *HttpRouter {
	return &HttpRouter{opts: opts}
}
