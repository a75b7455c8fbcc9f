package handlers

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rewardhive/backend/app/middleware"
	businessflow "github.com/rewardhive/backend/business_flow"
	"github.com/rewardhive/backend/providers"
	"github.com/rewardhive/backend/utils"
)

// Plain-text postback responses. Offer networks match on these exact
// strings to decide whether to retry, so they are part of the wire
// contract and never change.
const (
	respOK              = "OK"
	respReversed        = "REVERSED"
	respAlreadyHandled  = "ALREADY_HANDLED"
	respIgnoredEvent    = "IGNORED_EVENT"
	respMissingUserOrTx = "MISSING_USER_OR_TX"
	respInvalidAmount   = "INVALID_AMOUNT"
	respInvalidStatus   = "INVALID_STATUS"
	respInvalidSecret   = "INVALID_SECRET"
	respInvalidHash     = "INVALID_HASH"
	respForbiddenIP     = "FORBIDDEN_IP"
	respUserNotFound    = "USER_NOT_FOUND"
	respServerError     = "SERVER_ERROR"
)

// PostbackHandlerInterface defines the contract for postback handlers
type PostbackHandlerInterface interface {
	CPXPostback(c fiber.Ctx) error
	BitLabsPostback(c fiber.Ctx) error
	TimeWallPostback(c fiber.Ctx) error
}

// PostbackHandler handles offer-network postback HTTP requests
type PostbackHandler struct {
	postbackFlow businessflow.PostbackFlow
	registry     *providers.Registry
	reputation   *middleware.ReputationMiddleware
}

// NewPostbackHandler creates a new postback handler
func NewPostbackHandler(postbackFlow businessflow.PostbackFlow, registry *providers.Registry, reputation *middleware.ReputationMiddleware) *PostbackHandler {
	return &PostbackHandler{
		postbackFlow: postbackFlow,
		registry:     registry,
		reputation:   reputation,
	}
}

// CPXPostback handles CPX Research survey postbacks
// @Summary CPX Postback
// @Description Receives completed/reversed survey notifications from CPX Research
// @Tags Postbacks
// @Produce plain
// @Router /api/v1/postbacks/cpx [get]
func (h *PostbackHandler) CPXPostback(c fiber.Ctx) error {
	return h.handle(c, utils.ProviderCPX, "/api/v1/postbacks/cpx")
}

// BitLabsPostback handles BitLabs survey postbacks
// @Summary BitLabs Postback
// @Description Receives completed/reversed survey notifications from BitLabs
// @Tags Postbacks
// @Produce plain
// @Router /api/v1/postbacks/bitlabs [get]
func (h *PostbackHandler) BitLabsPostback(c fiber.Ctx) error {
	return h.handle(c, utils.ProviderBitLabs, "/api/v1/postbacks/bitlabs")
}

// TimeWallPostback handles TimeWall offerwall postbacks
// @Summary TimeWall Postback
// @Description Receives completed/chargeback notifications from TimeWall
// @Tags Postbacks
// @Produce plain
// @Router /api/v1/postbacks/timewall [get]
func (h *PostbackHandler) TimeWallPostback(c fiber.Ctx) error {
	return h.handle(c, utils.ProviderTimeWall, "/api/v1/postbacks/timewall")
}

// handle runs the shared pipeline: parse the provider vocabulary, verify
// authenticity, apply the event, answer in the provider's plain-text
// contract. Parsing and authenticity checks never touch the ledger.
func (h *PostbackHandler) handle(c fiber.Ctx, providerName, endpoint string) error {
	provider := h.registry.Get(providerName)
	if provider == nil {
		return c.Status(fiber.StatusInternalServerError).SendString(respServerError)
	}

	query := queryValues(c)
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	ctx := h.createRequestContext(c, endpoint)

	event, err := provider.Parse(query)
	if err != nil {
		status, text := parseErrorResponse(err)
		h.postbackFlow.RecordRejection(ctx, providerName, text, metadata)
		middleware.RecordPostbackEvent(providerName, "rejected")
		return c.Status(status).SendString(text)
	}

	if err := provider.Authenticate(query, c.IP()); err != nil {
		text := authErrorResponse(err)
		h.reputation.RecordFailure(c)
		h.postbackFlow.RecordRejection(ctx, providerName, text, metadata)
		middleware.RecordPostbackEvent(providerName, "rejected")
		return c.Status(fiber.StatusForbidden).SendString(text)
	}

	result, err := h.postbackFlow.ApplyEvent(ctx, event, metadata)
	if err != nil {
		if businessflow.IsUserNotFound(err) {
			middleware.RecordPostbackEvent(providerName, "rejected")
			return c.Status(fiber.StatusNotFound).SendString(respUserNotFound)
		}
		middleware.RecordPostbackEvent(providerName, "failed")
		return c.Status(fiber.StatusInternalServerError).SendString(respServerError)
	}

	middleware.RecordPostbackEvent(providerName, string(result.Outcome))
	switch result.Outcome {
	case businessflow.OutcomeApplied:
		middleware.RecordPostbackCredited(providerName, result.NetCents)
		return c.Status(fiber.StatusOK).SendString(respOK)
	case businessflow.OutcomeReversed:
		return c.Status(fiber.StatusOK).SendString(respReversed)
	case businessflow.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).SendString(respAlreadyHandled)
	case businessflow.OutcomeIgnored:
		return c.Status(fiber.StatusOK).SendString(respIgnoredEvent)
	default:
		return c.Status(fiber.StatusInternalServerError).SendString(respServerError)
	}
}

func parseErrorResponse(err error) (int, string) {
	switch err {
	case providers.ErrMissingUserOrTx:
		return fiber.StatusBadRequest, respMissingUserOrTx
	case providers.ErrInvalidAmount, providers.ErrAmountBelowMinimum:
		return fiber.StatusBadRequest, respInvalidAmount
	case providers.ErrInvalidStatus:
		return fiber.StatusBadRequest, respInvalidStatus
	default:
		return fiber.StatusInternalServerError, respServerError
	}
}

func authErrorResponse(err error) string {
	switch err {
	case providers.ErrInvalidSecret:
		return respInvalidSecret
	case providers.ErrForbiddenIP:
		return respForbiddenIP
	default:
		return respInvalidHash
	}
}

// queryValues copies the request query into url.Values for the adapters
func queryValues(c fiber.Ctx) url.Values {
	values := url.Values{}
	for key, value := range c.Queries() {
		values.Set(key, value)
	}
	return values
}

func (h *PostbackHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *PostbackHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
