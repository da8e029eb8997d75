package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/farhadimrf/spotify-clone/app/models"
	"github.com/farhadimrf/spotify-clone/internal/pkg/billing"
	"github.com/farhadimrf/spotify-clone/internal/pkg/usercontext"
)

// BillingService is the part of the billing core the HTTP layer talks to.
type BillingService interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) billing.Result
	CreateCheckoutSession(ctx context.Context, userID, email string, req billing.CheckoutRequest) (string, error)
	CreatePortalLink(ctx context.Context, userID, email string) (string, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	ActiveSubscription(ctx context.Context, userID string) (*models.Subscription, error)
}

// BillingController handles provider webhooks and the account billing API
type BillingController struct {
	service BillingService
}

// NewBillingController creates a new billing controller
func NewBillingController(service BillingService) *BillingController {
	return &BillingController{service: service}
}

// HandleStripeWebhook verifies and applies one provider delivery. The status
// code tells the provider whether to redeliver.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	res := bc.service.HandleWebhook(c.UserContext(), rawBody, signature)
	return c.Status(res.StatusCode()).JSON(res)
}

// HandleCheckout starts a subscription checkout for the authenticated user.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed request body"})
	}

	sessionID, err := bc.service.CreateCheckoutSession(c.UserContext(), userCtx.UserID, userCtx.Email, req)
	if err != nil {
		return bc.handleError(c, "checkout", err)
	}
	return c.JSON(fiber.Map{"session_id": sessionID})
}

// HandlePortal returns a billing portal link for the authenticated user.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	url, err := bc.service.CreatePortalLink(c.UserContext(), userCtx.UserID, userCtx.Email)
	if err != nil {
		return bc.handleError(c, "portal", err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleProducts lists the active catalogue.
func (bc *BillingController) HandleProducts(c *fiber.Ctx) error {
	products, err := bc.service.ListActiveProducts(c.UserContext())
	if err != nil {
		return bc.handleError(c, "products", err)
	}
	return c.JSON(fiber.Map{"products": products})
}

// HandleSubscription returns the entitling subscription of the authenticated
// user; subscription is null when there is none.
func (bc *BillingController) HandleSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
	}

	sub, err := bc.service.ActiveSubscription(c.UserContext(), userCtx.UserID)
	if err != nil {
		return bc.handleError(c, "subscription", err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// handleError maps billing errors onto JSON error responses
func (bc *BillingController) handleError(c *fiber.Ctx, op string, err error) error {
	var providerErr *billing.ProviderAPIError
	switch {
	case errors.Is(err, billing.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	case errors.As(err, &providerErr):
		log.Errorw("[Billing] Provider call failed", "op", op, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error", "message": "Payment provider request failed"})
	default:
		log.Errorw("[Billing] Request failed", "op", op, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Billing request failed"})
	}
}
