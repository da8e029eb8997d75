package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/farhadimrf/spotify-clone/app/controllers"
	"github.com/farhadimrf/spotify-clone/internal/pkg/middleware"
)

type ApiRouter struct {
	billing BillingAPI
	opts    Options
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	bc := controllers.NewBillingController(h.billing)

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Provider webhooks are signature-verified in the controller and never
	// rate limited: a 429 would only trigger redelivery.
	api.Post("/webhooks/stripe", bc.HandleStripeWebhook)

	// API v1 routes
	v1 := api.Group("/v1")
	billing := v1.Group("/billing")
	billing.Get("/products", h.limiter(60), bc.HandleProducts)

	auth := middleware.APIKeyAuthMiddleware(h.billing)
	billing.Post("/checkout", auth, middleware.RequireAPIAuth, h.limiter(10), bc.HandleCheckout)
	billing.Post("/portal", auth, middleware.RequireAPIAuth, h.limiter(10), bc.HandlePortal)
	billing.Get("/subscription", auth, middleware.RequireAPIAuth, h.limiter(60), bc.HandleSubscription)
}

// limiter allows max requests per minute per caller.
func (h ApiRouter) limiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Route().Path + "|" + middleware.RateLimitKey(c)
		},
		Storage:      h.opts.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	})
}

func NewApiRouter(billing BillingAPI, opts Options) *ApiRouter {
	return &ApiRouter{billing: billing, opts: opts}
}
