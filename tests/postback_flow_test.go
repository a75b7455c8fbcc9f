package tests

import (
	"context"
	"fmt"
	"sync"
	"testing"

	businessflow "github.com/rewardhive/backend/business_flow"
	"github.com/rewardhive/backend/config"
	"github.com/rewardhive/backend/models"
	"github.com/rewardhive/backend/providers"
	"github.com/rewardhive/backend/repository"
	testingutil "github.com/rewardhive/backend/testing"
	"github.com/rewardhive/backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRewardsConfig() config.RewardsConfig {
	return config.RewardsConfig{
		PayoutRatio:      0.7,
		BonusMultiplier:  1.2,
		MinPostbackCents: 1,
	}
}

func creditEvent(userID uint, externalTxID string, grossCents int64) *providers.Event {
	return &providers.Event{
		Provider:     utils.ProviderCPX,
		UserID:       userID,
		ExternalTxID: externalTxID,
		Kind:         providers.EventCredit,
		GrossCents:   grossCents,
		Raw:          map[string]string{"status": "1"},
	}
}

func reversalEvent(userID uint, externalTxID string, grossCents int64) *providers.Event {
	return &providers.Event{
		Provider:     utils.ProviderCPX,
		UserID:       userID,
		ExternalTxID: externalTxID,
		Kind:         providers.EventReversal,
		GrossCents:   grossCents,
		Raw:          map[string]string{"status": "2"},
	}
}

func TestApplyPostbackEvent(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		userRepo := repository.NewUserRepository(testDB.DB)
		transactionRepo := repository.NewTransactionRepository(testDB.DB)
		auditRepo := repository.NewAuditLogRepository(testDB.DB)

		flow := businessflow.NewPostbackFlow(userRepo, transactionRepo, auditRepo, testDB.DB, testRewardsConfig())
		metadata := businessflow.NewClientMetadata("188.40.3.73", "cpx-postback")

		t.Run("CreditAppliesNetAmount", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			// $10.00 gross at the 70% payout ratio
			result, err := flow.ApplyEvent(context.Background(), creditEvent(user.ID, "abc123", 1000), metadata)
			require.NoError(t, err)
			require.NotNil(t, result)
			assert.Equal(t, businessflow.OutcomeApplied, result.Outcome)
			assert.Equal(t, "CPX_abc123", result.TxID)
			assert.Equal(t, int64(700), result.NetCents)
			assert.Equal(t, int64(700), result.BalanceCents)

			// Journal record carries the signed net amount
			journal, err := transactionRepo.ByTxID(context.Background(), "CPX_abc123")
			require.NoError(t, err)
			require.NotNil(t, journal)
			assert.Equal(t, models.TransactionKindCredit, journal.Kind)
			assert.Equal(t, models.TransactionStatusCompleted, journal.Status)
			assert.Equal(t, int64(700), journal.AmountCents)
			assert.Equal(t, utils.ProviderCPX, journal.Provider)

			// Ledger updated
			fresh, err := userRepo.ByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(700), fresh.BalanceCents)
			assert.Equal(t, int64(700), fresh.TotalEarnedCents)

			// Audit trail
			audits, err := auditRepo.ByFilter(context.Background(), models.AuditLogFilter{
				UserID: &user.ID,
				Action: utils.ToPtr(models.AuditActionPostbackApplied),
			}, "", 0, 0)
			require.NoError(t, err)
			require.Len(t, audits, 1)
			assert.True(t, audits[0].Success)
			assert.Equal(t, "188.40.3.73", audits[0].IPAddress)
		})

		t.Run("ReplayIsAcknowledgedWithoutMutation", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			_, err = flow.ApplyEvent(context.Background(), creditEvent(user.ID, "replay-1", 1000), metadata)
			require.NoError(t, err)

			result, err := flow.ApplyEvent(context.Background(), creditEvent(user.ID, "replay-1", 1000), metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeDuplicate, result.Outcome)

			// Balance credited exactly once
			fresh, err := userRepo.ByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(700), fresh.BalanceCents)

			// Exactly one journal record
			count, err := transactionRepo.Count(context.Background(), models.TransactionFilter{
				TxID: utils.ToPtr("CPX_replay-1"),
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("SameExternalIDDifferentProvidersAreDistinct", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			_, err = flow.ApplyEvent(context.Background(), creditEvent(user.ID, "shared-id", 1000), metadata)
			require.NoError(t, err)

			bitlabs := creditEvent(user.ID, "shared-id", 1000)
			bitlabs.Provider = utils.ProviderBitLabs
			result, err := flow.ApplyEvent(context.Background(), bitlabs, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeApplied, result.Outcome)
			assert.Equal(t, "BITLABS_shared-id", result.TxID)

			fresh, err := userRepo.ByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(1400), fresh.BalanceCents)
		})

		t.Run("ReversalDeductsNetAmount", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			_, err = flow.ApplyEvent(context.Background(), creditEvent(user.ID, "rev-1", 1000), metadata)
			require.NoError(t, err)

			result, err := flow.ApplyEvent(context.Background(), reversalEvent(user.ID, "rev-1-chargeback", 1000), metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeReversed, result.Outcome)
			assert.Equal(t, int64(-700), result.NetCents)
			assert.Equal(t, int64(0), result.BalanceCents)

			journal, err := transactionRepo.ByTxID(context.Background(), "CPX_rev-1-chargeback")
			require.NoError(t, err)
			require.NotNil(t, journal)
			assert.Equal(t, models.TransactionKindReversal, journal.Kind)
			assert.Equal(t, int64(-700), journal.AmountCents)
		})

		t.Run("ReversalFloorsBalanceAtZero", func(t *testing.T) {
			// Balance lower than the reversal net; the user already spent
			// part of it.
			user, err := fixtures.CreateTestUserWithBalance(300)
			require.NoError(t, err)

			result, err := flow.ApplyEvent(context.Background(), reversalEvent(user.ID, "floor-1", 1000), metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeReversed, result.Outcome)
			assert.Equal(t, int64(0), result.BalanceCents)

			fresh, err := userRepo.ByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), fresh.BalanceCents)
			assert.Equal(t, int64(0), fresh.TotalEarnedCents)
		})

		t.Run("BonusCreditUsesMultiplier", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			event := creditEvent(user.ID, "bonus-1", 1000)
			event.IsBonus = true
			result, err := flow.ApplyEvent(context.Background(), event, metadata)
			require.NoError(t, err)
			assert.Equal(t, int64(840), result.NetCents) // 1000 * 0.7 * 1.2
		})

		t.Run("UnknownUserIsRejectedWithoutJournal", func(t *testing.T) {
			result, err := flow.ApplyEvent(context.Background(), creditEvent(999999, "ghost-1", 1000), metadata)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, businessflow.IsUserNotFound(err))

			exists, err := transactionRepo.ExistsByTxID(context.Background(), "CPX_ghost-1")
			require.NoError(t, err)
			assert.False(t, exists)
		})

		t.Run("IgnoredEventTouchesNothing", func(t *testing.T) {
			user, err := fixtures.CreateTestUser()
			require.NoError(t, err)

			event := &providers.Event{
				Provider:     utils.ProviderCPX,
				UserID:       user.ID,
				ExternalTxID: "ignored-1",
				Kind:         providers.EventIgnored,
			}
			result, err := flow.ApplyEvent(context.Background(), event, metadata)
			require.NoError(t, err)
			assert.Equal(t, businessflow.OutcomeIgnored, result.Outcome)

			exists, err := transactionRepo.ExistsByTxID(context.Background(), "CPX_ignored-1")
			require.NoError(t, err)
			assert.False(t, exists)

			fresh, err := userRepo.ByID(context.Background(), user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), fresh.BalanceCents)
		})

		t.Run("RejectionIsAudited", func(t *testing.T) {
			flow.RecordRejection(context.Background(), utils.ProviderTimeWall, "hash parameter does not match", metadata)

			audits, err := auditRepo.ByFilter(context.Background(), models.AuditLogFilter{
				Action:   utils.ToPtr(models.AuditActionPostbackRejected),
				Provider: utils.ToPtr(utils.ProviderTimeWall),
			}, "", 0, 0)
			require.NoError(t, err)
			require.NotEmpty(t, audits)
			assert.False(t, audits[len(audits)-1].Success)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestApplyPostbackEventConcurrentReplay(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		userRepo := repository.NewUserRepository(testDB.DB)
		transactionRepo := repository.NewTransactionRepository(testDB.DB)
		auditRepo := repository.NewAuditLogRepository(testDB.DB)

		flow := businessflow.NewPostbackFlow(userRepo, transactionRepo, auditRepo, testDB.DB, testRewardsConfig())
		metadata := businessflow.NewClientMetadata("188.40.3.73", "cpx-postback")

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)

		// The same delivery racing against itself. Every goroutine can
		// pass the pre-transaction existence check before any of them
		// commits, so the duplicate has to be caught under the row lock
		// or by the journal unique index.
		const deliveries = 8
		results := make([]*businessflow.PostbackResult, deliveries)
		errs := make([]error, deliveries)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < deliveries; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = flow.ApplyEvent(context.Background(), creditEvent(user.ID, "race-1", 1000), metadata)
			}(i)
		}
		close(start)
		wg.Wait()

		applied, duplicates := 0, 0
		for i := 0; i < deliveries; i++ {
			require.NoError(t, errs[i])
			require.NotNil(t, results[i])
			switch results[i].Outcome {
			case businessflow.OutcomeApplied:
				applied++
			case businessflow.OutcomeDuplicate:
				duplicates++
			default:
				t.Fatalf("unexpected outcome %q", results[i].Outcome)
			}
		}
		assert.Equal(t, 1, applied)
		assert.Equal(t, deliveries-1, duplicates)

		// Exactly one journal record and one balance mutation
		count, err := transactionRepo.Count(context.Background(), models.TransactionFilter{
			TxID: utils.ToPtr("CPX_race-1"),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		fresh, err := userRepo.ByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(700), fresh.BalanceCents)
		assert.Equal(t, int64(700), fresh.TotalEarnedCents)

		return nil
	})
	require.NoError(t, err)
}

func TestApplyPostbackEventSequence(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)

		userRepo := repository.NewUserRepository(testDB.DB)
		transactionRepo := repository.NewTransactionRepository(testDB.DB)
		auditRepo := repository.NewAuditLogRepository(testDB.DB)

		flow := businessflow.NewPostbackFlow(userRepo, transactionRepo, auditRepo, testDB.DB, testRewardsConfig())
		metadata := businessflow.NewClientMetadata("188.40.3.73", "cpx-postback")

		user, err := fixtures.CreateTestUser()
		require.NoError(t, err)

		// A burst of distinct completions followed by one chargeback
		for i := 0; i < 5; i++ {
			_, err := flow.ApplyEvent(context.Background(), creditEvent(user.ID, fmt.Sprintf("seq-%d", i), 200), metadata)
			require.NoError(t, err)
		}

		fresh, err := userRepo.ByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(700), fresh.BalanceCents) // 5 * round(200*0.7)

		_, err = flow.ApplyEvent(context.Background(), reversalEvent(user.ID, "seq-0-back", 200), metadata)
		require.NoError(t, err)

		fresh, err = userRepo.ByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(560), fresh.BalanceCents)

		count, err := transactionRepo.Count(context.Background(), models.TransactionFilter{UserID: &user.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(6), count)

		return nil
	})
	require.NoError(t, err)
}
