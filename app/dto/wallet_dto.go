package dto

import "time"

// GetWalletBalanceRequest represents the request to retrieve a user's balance
type GetWalletBalanceRequest struct {
	UserID uint `json:"user_id" validate:"required"` // User ID (from authenticated context)
}

// GetWalletBalanceResponse represents the current ledger state of a user
type GetWalletBalanceResponse struct {
	UserID           uint   `json:"user_id"`
	BalanceCents     int64  `json:"balance_cents"`      // Spendable balance, USD cents
	Balance          string `json:"balance"`            // Display form, e.g. "7.00"
	TotalEarnedCents int64  `json:"total_earned_cents"` // Lifetime earnings, USD cents
	TotalEarned      string `json:"total_earned"`       // Display form
	Currency         string `json:"currency"`
}

// GetTransactionHistoryRequest represents the request to retrieve journal history
type GetTransactionHistoryRequest struct {
	UserID    uint       `json:"user_id" validate:"required"`        // User ID (from authenticated context)
	Page      uint       `json:"page" validate:"min=1"`              // Page number (1-based)
	PageSize  uint       `json:"page_size" validate:"min=1,max=100"` // Number of items per page
	StartDate *time.Time `json:"start_date,omitempty"`               // Optional start date filter
	EndDate   *time.Time `json:"end_date,omitempty"`                 // Optional end date filter
	Kind      *string    `json:"kind,omitempty"`                     // Optional kind filter (credit, reversal)
	Provider  *string    `json:"provider,omitempty"`                 // Optional provider filter
}

// TransactionHistoryItem represents a single journal record
type TransactionHistoryItem struct {
	UUID        string    `json:"uuid"`
	TxID        string    `json:"tx_id"`        // Provider-namespaced idempotency key
	Kind        string    `json:"kind"`         // credit or reversal
	Status      string    `json:"status"`       // completed or reversed
	AmountCents int64     `json:"amount_cents"` // Signed net amount, USD cents
	Amount      string    `json:"amount"`       // Display form
	Currency    string    `json:"currency"`
	Provider    string    `json:"provider"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// TransactionHistoryResponse represents the response for journal history
type TransactionHistoryResponse struct {
	Items      []TransactionHistoryItem `json:"items"`
	Pagination PaginationInfo           `json:"pagination"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	CurrentPage uint `json:"current_page"`
	PageSize    uint `json:"page_size"`
	TotalItems  uint `json:"total_items"`
	TotalPages  uint `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}
