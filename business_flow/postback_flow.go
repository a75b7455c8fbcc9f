// Package businessflow contains the core business logic and use cases for postback reconciliation workflows
package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"
	"github.com/rewardhive/backend/config"
	"github.com/rewardhive/backend/models"
	"github.com/rewardhive/backend/providers"
	"github.com/rewardhive/backend/repository"
	"github.com/rewardhive/backend/utils"
	"gorm.io/gorm"
)

// PostbackOutcome classifies what applying a postback event did
type PostbackOutcome string

const (
	OutcomeApplied   PostbackOutcome = "applied"
	OutcomeReversed  PostbackOutcome = "reversed"
	OutcomeDuplicate PostbackOutcome = "duplicate"
	OutcomeIgnored   PostbackOutcome = "ignored"
)

// PostbackResult reports the effect of one postback event
type PostbackResult struct {
	Outcome      PostbackOutcome
	TxID         string
	NetCents     int64
	BalanceCents int64
}

// PostbackFlow turns verified provider events into ledger mutations
type PostbackFlow interface {
	ApplyEvent(ctx context.Context, event *providers.Event, metadata *ClientMetadata) (*PostbackResult, error)
	// RecordRejection writes the abuse-signal audit entry for a postback
	// that failed parsing or authenticity checks. Never touches the
	// ledger.
	RecordRejection(ctx context.Context, provider, reason string, metadata *ClientMetadata)
}

// PostbackFlowImpl implements the postback business flow
type PostbackFlowImpl struct {
	userRepo        repository.UserRepository
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditLogRepository
	db              *gorm.DB

	rewardsCfg config.RewardsConfig
}

// NewPostbackFlow creates a new postback flow instance
func NewPostbackFlow(
	userRepo repository.UserRepository,
	transactionRepo repository.TransactionRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
	rewardsCfg config.RewardsConfig,
) PostbackFlow {
	return &PostbackFlowImpl{
		userRepo:        userRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		db:              db,
		rewardsCfg:      rewardsCfg,
	}
}

// CalculateNetCents applies the platform payout ratio (and the bonus
// multiplier when flagged) to a gross provider amount. Pure; rounding is
// half away from zero so the figure a user sees never depends on which
// instance processed the postback.
func CalculateNetCents(grossCents int64, isBonus bool, cfg config.RewardsConfig) int64 {
	ratio := cfg.PayoutRatio
	if ratio <= 0 {
		ratio = utils.DefaultPayoutRatio
	}
	multiplier := 1.0
	if isBonus {
		multiplier = cfg.BonusMultiplier
		if multiplier <= 0 {
			multiplier = utils.DefaultBonusMultiplier
		}
	}
	return int64(math.Round(float64(grossCents) * ratio * multiplier))
}

// ApplyEvent applies one normalized postback event to the ledger,
// exactly once. The sequence inside the transaction is fixed: lock the
// user row, re-check the journal for the idempotency key, write the
// journal record, update the balance. The unique index on the journal
// key catches the race two instances can still lose concurrently; that
// collision is reported as a duplicate, not an error.
func (p *PostbackFlowImpl) ApplyEvent(ctx context.Context, event *providers.Event, metadata *ClientMetadata) (*PostbackResult, error) {
	if event == nil {
		return nil, NewBusinessError("POSTBACK_EVENT_NIL", "Postback event is nil", ErrEventNil)
	}

	if event.Kind == providers.EventIgnored {
		p.logAudit(ctx, models.AuditActionPostbackIgnored, event.Provider, nil, true,
			fmt.Sprintf("Ignored event for external tx %s", event.ExternalTxID), nil, metadata)
		return &PostbackResult{Outcome: OutcomeIgnored, TxID: event.TxID()}, nil
	}

	txID := event.TxID()

	// Fast path outside the transaction; replays are common and should
	// not take the row lock.
	exists, err := p.transactionRepo.ExistsByTxID(ctx, txID)
	if err != nil {
		return nil, NewBusinessError("POSTBACK_LOOKUP_FAILED", "Failed to check journal", err)
	}
	if exists {
		p.logAudit(ctx, models.AuditActionPostbackDup, event.Provider, &event.UserID, true,
			fmt.Sprintf("Duplicate postback %s", txID), nil, metadata)
		return &PostbackResult{Outcome: OutcomeDuplicate, TxID: txID}, nil
	}

	netCents := CalculateNetCents(event.GrossCents, event.IsBonus, p.rewardsCfg)

	var result *PostbackResult
	err = repository.WithTransaction(ctx, p.db, func(txCtx context.Context) error {
		user, err := p.userRepo.ByIDForUpdate(txCtx, event.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		// Re-check under the lock; another instance may have applied
		// the same event between the fast path and here.
		exists, err := p.transactionRepo.ExistsByTxID(txCtx, txID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicatePostback
		}

		journal := &models.Transaction{
			TxID:     txID,
			UserID:   user.ID,
			Provider: event.Provider,
			Currency: utils.USDCurrency,
			Meta:     marshalMeta(event.Raw),
		}

		newBalance := user.BalanceCents
		newTotalEarned := user.TotalEarnedCents

		switch event.Kind {
		case providers.EventCredit:
			journal.Kind = models.TransactionKindCredit
			journal.Status = models.TransactionStatusCompleted
			journal.AmountCents = netCents
			newBalance += netCents
			newTotalEarned += netCents
		case providers.EventReversal:
			journal.Kind = models.TransactionKindReversal
			journal.Status = models.TransactionStatusReversed
			journal.AmountCents = -netCents
			// The balance never goes negative; a reversal larger than
			// the remaining balance deducts what is there.
			newBalance -= netCents
			if newBalance < 0 {
				newBalance = 0
			}
			newTotalEarned -= netCents
			if newTotalEarned < 0 {
				newTotalEarned = 0
			}
		default:
			return NewBusinessErrorf("POSTBACK_KIND_UNKNOWN", "Unknown event kind %q", nil, event.Kind)
		}

		if err := p.transactionRepo.Save(txCtx, journal); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePostback
			}
			return err
		}

		if err := p.userRepo.UpdateLedger(txCtx, user.ID, newBalance, newTotalEarned); err != nil {
			return err
		}

		action := models.AuditActionPostbackApplied
		outcome := OutcomeApplied
		if event.Kind == providers.EventReversal {
			action = models.AuditActionPostbackReversed
			outcome = OutcomeReversed
		}
		audit := p.buildAudit(action, event.Provider, &user.ID, true,
			fmt.Sprintf("Postback %s applied, net %s USD", txID, utils.FormatCents(journal.AmountCents)), nil, metadata)
		if err := p.auditRepo.Save(txCtx, audit); err != nil {
			return err
		}

		result = &PostbackResult{
			Outcome:      outcome,
			TxID:         txID,
			NetCents:     journal.AmountCents,
			BalanceCents: newBalance,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, ErrDuplicatePostback) {
			p.logAudit(ctx, models.AuditActionPostbackDup, event.Provider, &event.UserID, true,
				fmt.Sprintf("Duplicate postback %s", txID), nil, metadata)
			return &PostbackResult{Outcome: OutcomeDuplicate, TxID: txID}, nil
		}
		if errors.Is(err, ErrUserNotFound) {
			errMsg := err.Error()
			p.logAudit(ctx, models.AuditActionPostbackRejected, event.Provider, &event.UserID, false,
				fmt.Sprintf("Postback %s for unknown user %d", txID, event.UserID), &errMsg, metadata)
			return nil, NewBusinessError("POSTBACK_USER_NOT_FOUND", "User not found", ErrUserNotFound)
		}
		errMsg := err.Error()
		p.logAudit(ctx, models.AuditActionPostbackFailed, event.Provider, &event.UserID, false,
			fmt.Sprintf("Postback %s failed", txID), &errMsg, metadata)
		return nil, NewBusinessError("POSTBACK_APPLY_FAILED", "Failed to apply postback", err)
	}

	return result, nil
}

// RecordRejection writes the audit entry for a rejected postback. Audit
// write failures are swallowed; rejection logging must never turn a 403
// into a 500.
func (p *PostbackFlowImpl) RecordRejection(ctx context.Context, provider, reason string, metadata *ClientMetadata) {
	p.logAudit(ctx, models.AuditActionPostbackRejected, provider, nil, false,
		fmt.Sprintf("Postback rejected: %s", reason), &reason, metadata)
}

func (p *PostbackFlowImpl) logAudit(ctx context.Context, action, provider string, userID *uint, success bool, description string, errMsg *string, metadata *ClientMetadata) {
	audit := p.buildAudit(action, provider, userID, success, description, errMsg, metadata)
	_ = p.auditRepo.Save(ctx, audit)
}

func (p *PostbackFlowImpl) buildAudit(action, provider string, userID *uint, success bool, description string, errMsg *string, metadata *ClientMetadata) *models.AuditLog {
	audit := &models.AuditLog{
		UserID:       userID,
		Action:       action,
		Provider:     provider,
		Description:  description,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if metadata != nil {
		audit.IPAddress = metadata.IPAddress
		audit.UserAgent = metadata.UserAgent
		audit.RequestID = metadata.RequestID
		if len(metadata.Additional) > 0 {
			if bs, err := json.Marshal(metadata.Additional); err == nil {
				audit.Metadata = bs
			}
		}
	}
	return audit
}

func marshalMeta(raw map[string]string) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	bs, err := json.Marshal(raw)
	if err != nil {
		return json.RawMessage("{}")
	}
	return bs
}

// isUniqueViolation reports whether err is the journal unique index
// firing (Postgres SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
