package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/rewardhive/backend/app/dto"
	businessflow "github.com/rewardhive/backend/business_flow"
	"github.com/rewardhive/backend/utils"
)

// WalletHandlerInterface defines the contract for wallet handlers
type WalletHandlerInterface interface {
	GetWalletBalance(c fiber.Ctx) error
	GetTransactionHistory(c fiber.Ctx) error
}

// WalletHandler handles wallet-related HTTP requests
type WalletHandler struct {
	walletFlow businessflow.WalletFlow
	validator  *validator.Validate
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletFlow businessflow.WalletFlow) *WalletHandler {
	return &WalletHandler{
		walletFlow: walletFlow,
		validator:  validator.New(),
	}
}

func (h *WalletHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WalletHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// GetWalletBalance returns the authenticated user's balance
// @Summary Get Wallet Balance
// @Description Returns the authenticated user's spendable balance and lifetime earnings
// @Tags Wallet
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.GetWalletBalanceResponse} "Balance retrieved"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "User not found"
// @Router /api/v1/wallet/balance [get]
func (h *WalletHandler) GetWalletBalance(c fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	req := &dto.GetWalletBalanceRequest{UserID: userID}

	result, err := h.walletFlow.GetWalletBalance(h.createRequestContext(c, "/api/v1/wallet/balance"), req, metadata)
	if err != nil {
		if businessflow.IsUserNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "User not found", "USER_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load balance", "WALLET_BALANCE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Balance retrieved successfully", result)
}

// GetTransactionHistory returns the authenticated user's journal records
// @Summary Get Transaction History
// @Description Returns the authenticated user's earning and reversal history, newest first
// @Tags Wallet
// @Produce json
// @Param page query int false "Page number (1-based)"
// @Param page_size query int false "Items per page (max 100)"
// @Param kind query string false "Filter by kind (credit, reversal)"
// @Param provider query string false "Filter by provider"
// @Success 200 {object} dto.APIResponse{data=dto.TransactionHistoryResponse} "History retrieved"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/wallet/transactions [get]
func (h *WalletHandler) GetTransactionHistory(c fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}

	req := &dto.GetTransactionHistoryRequest{
		UserID:   userID,
		Page:     queryUint(c, "page", 1),
		PageSize: queryUint(c, "page_size", 20),
	}
	if kind := c.Query("kind"); kind != "" {
		req.Kind = &kind
	}
	if provider := c.Query("provider"); provider != "" {
		req.Provider = &provider
	}
	if start := c.Query("start_date"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			req.StartDate = &t
		}
	}
	if end := c.Query("end_date"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			req.EndDate = &t
		}
	}

	if err := h.validator.Struct(req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	result, err := h.walletFlow.GetTransactionHistory(h.createRequestContext(c, "/api/v1/wallet/transactions"), req, metadata)
	if err != nil {
		if businessflow.IsUserNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "User not found", "USER_NOT_FOUND", nil)
		}
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load transaction history", "TRANSACTION_HISTORY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Transaction history retrieved successfully", result)
}

func queryUint(c fiber.Ctx, name string, fallback uint) uint {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || v == 0 {
		return fallback
	}
	return uint(v)
}

func (h *WalletHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *WalletHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
