package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/farhadimrf/spotify-clone/app/controllers"
	"github.com/farhadimrf/spotify-clone/internal/pkg/middleware"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// BillingAPI is what the routes need from the billing core.
type BillingAPI interface {
	controllers.BillingService
	middleware.APIKeyAuthenticator
}

// Options configures the installed routes.
type Options struct {
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// MetricsUser and MetricsPassword protect /metrics and /monitor. The
	// routes are not installed without a password.
	MetricsUser     string
	MetricsPassword string
	// Ready reports whether dependencies answer; nil means always ready.
	Ready func() error
}

func InstallRouter(app *fiber.App, billing BillingAPI, opts Options) {
	setup(app, NewHttpRouter(opts), NewApiRouter(billing, opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
