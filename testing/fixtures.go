// Package testing provides test utilities and database setup for testing the postback reconciliation system
package testing

import (
	"fmt"
	"math/rand"

	"github.com/rewardhive/backend/models"
	"github.com/rewardhive/backend/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestUser creates an active user with a zero balance
func (tf *TestFixtures) CreateTestUser() (*models.User, error) {
	return tf.CreateTestUserWithBalance(0)
}

// CreateTestUserWithBalance creates an active user with the given balance.
// TotalEarned starts equal to the balance, as if everything was earned
// and nothing spent.
func (tf *TestFixtures) CreateTestUserWithBalance(balanceCents int64) (*models.User, error) {
	suffix := fmt.Sprintf("%09d", rand.Intn(900000000)+100000000)

	user := &models.User{
		Username:         fmt.Sprintf("earner_%s", suffix),
		Email:            fmt.Sprintf("earner.%s@example.com", suffix),
		BalanceCents:     balanceCents,
		TotalEarnedCents: balanceCents,
		IsActive:         utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}

	return user, nil
}

// CreateTestTransaction inserts a journal record for the user
func (tf *TestFixtures) CreateTestTransaction(userID uint, txID string, kind models.TransactionKind, amountCents int64) (*models.Transaction, error) {
	status := models.TransactionStatusCompleted
	if kind == models.TransactionKindReversal {
		status = models.TransactionStatusReversed
	}

	transaction := &models.Transaction{
		TxID:        txID,
		UserID:      userID,
		Kind:        kind,
		Status:      status,
		AmountCents: amountCents,
		Currency:    utils.USDCurrency,
		Provider:    utils.ProviderCPX,
	}

	if err := tf.DB.DB.Create(transaction).Error; err != nil {
		return nil, fmt.Errorf("failed to create test transaction: %w", err)
	}

	return transaction, nil
}
