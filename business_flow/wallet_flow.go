// Package businessflow contains the core business logic and use cases for wallet read workflows
package businessflow

import (
	"context"
	"errors"

	"github.com/rewardhive/backend/app/dto"
	"github.com/rewardhive/backend/models"
	"github.com/rewardhive/backend/repository"
	"github.com/rewardhive/backend/utils"
	"gorm.io/gorm"
)

// WalletFlow exposes the user-facing read side of the ledger
type WalletFlow interface {
	GetWalletBalance(ctx context.Context, req *dto.GetWalletBalanceRequest, metadata *ClientMetadata) (*dto.GetWalletBalanceResponse, error)
	GetTransactionHistory(ctx context.Context, req *dto.GetTransactionHistoryRequest, metadata *ClientMetadata) (*dto.TransactionHistoryResponse, error)
}

// WalletFlowImpl implements the wallet read flow
type WalletFlowImpl struct {
	userRepo        repository.UserRepository
	transactionRepo repository.TransactionRepository
}

// NewWalletFlow creates a new wallet flow instance
func NewWalletFlow(userRepo repository.UserRepository, transactionRepo repository.TransactionRepository) WalletFlow {
	return &WalletFlowImpl{
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
	}
}

// GetWalletBalance returns the user's current spendable balance and
// lifetime earnings
func (w *WalletFlowImpl) GetWalletBalance(ctx context.Context, req *dto.GetWalletBalanceRequest, metadata *ClientMetadata) (*dto.GetWalletBalanceResponse, error) {
	user, err := w.userRepo.ByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewBusinessError("WALLET_USER_NOT_FOUND", "User not found", ErrUserNotFound)
		}
		return nil, NewBusinessError("WALLET_BALANCE_FAILED", "Failed to load balance", err)
	}
	if user == nil {
		return nil, NewBusinessError("WALLET_USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}

	return &dto.GetWalletBalanceResponse{
		UserID:           user.ID,
		BalanceCents:     user.BalanceCents,
		Balance:          utils.FormatCents(user.BalanceCents),
		TotalEarnedCents: user.TotalEarnedCents,
		TotalEarned:      utils.FormatCents(user.TotalEarnedCents),
		Currency:         utils.USDCurrency,
	}, nil
}

// GetTransactionHistory returns the user's journal records, newest first
func (w *WalletFlowImpl) GetTransactionHistory(ctx context.Context, req *dto.GetTransactionHistoryRequest, metadata *ClientMetadata) (*dto.TransactionHistoryResponse, error) {
	if err := w.validateHistoryRequest(req); err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Transaction history failed", err)
	}

	user, err := w.userRepo.ByID(ctx, req.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Failed to load user", err)
	}
	if user == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewBusinessError("WALLET_USER_NOT_FOUND", "User not found", ErrUserNotFound)
	}

	filter := models.TransactionFilter{
		UserID:        &req.UserID,
		CreatedAfter:  req.StartDate,
		CreatedBefore: req.EndDate,
	}
	if req.Kind != nil {
		kind := models.TransactionKind(*req.Kind)
		filter.Kind = &kind
	}
	if req.Provider != nil {
		filter.Provider = req.Provider
	}

	total, err := w.transactionRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Failed to count journal records", err)
	}

	offset := int((req.Page - 1) * req.PageSize)
	records, err := w.transactionRepo.ByFilter(ctx, filter, "created_at DESC", int(req.PageSize), offset)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_HISTORY_FAILED", "Failed to load journal records", err)
	}

	items := make([]dto.TransactionHistoryItem, 0, len(records))
	for _, record := range records {
		items = append(items, dto.TransactionHistoryItem{
			UUID:        record.UUID.String(),
			TxID:        record.TxID,
			Kind:        string(record.Kind),
			Status:      string(record.Status),
			AmountCents: record.AmountCents,
			Amount:      utils.FormatCents(record.AmountCents),
			Currency:    record.Currency,
			Provider:    record.Provider,
			OccurredAt:  record.OccurredAt,
		})
	}

	totalPages := uint(0)
	if req.PageSize > 0 {
		totalPages = (uint(total) + req.PageSize - 1) / req.PageSize
	}

	return &dto.TransactionHistoryResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			CurrentPage: req.Page,
			PageSize:    req.PageSize,
			TotalItems:  uint(total),
			TotalPages:  totalPages,
			HasNext:     req.Page < totalPages,
			HasPrevious: req.Page > 1,
		},
	}, nil
}

func (w *WalletFlowImpl) validateHistoryRequest(req *dto.GetTransactionHistoryRequest) error {
	if req.Page < 1 {
		return ErrInvalidPage
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return ErrInvalidPageSize
	}
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return ErrStartDateAfterEndDate
	}
	return nil
}
