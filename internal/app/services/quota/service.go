// Package quota enforces the daily posting allowance and converts overage
// into credit spend for tiers that allow it.
package quota

import (
	"context"
	"strings"
	"time"

	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/metrics"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/errors"
	"github.com/strata-social/story_layer/internal/logging"
)

// Decision is the result of a post authorization attempt.
type Decision struct {
	Allowed       bool
	Charged       bool
	PostsUsed     int
	CreditBalance int64
	DenialReason  errors.ErrorCode
}

// Service authorizes story posts against per-tier daily allowances.
type Service struct {
	store       storage.QuotaStore
	tiers       map[string]quota.TierPolicy
	overageCost int64
	now         func() time.Time
	log         *logging.Logger
}

// New constructs a quota service. Unknown tiers fall back to the "free"
// policy when present.
func New(store storage.QuotaStore, tiers map[string]quota.TierPolicy, overageCost int64, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("quota")
	}
	if overageCost <= 0 {
		overageCost = 1
	}
	return &Service{
		store:       store,
		tiers:       tiers,
		overageCost: overageCost,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OverageCost reports the credit price of one over-quota post.
func (s *Service) OverageCost() int64 { return s.overageCost }

// Policy resolves the tier policy for a user's tier name.
func (s *Service) Policy(tier string) quota.TierPolicy {
	normalized := strings.ToLower(strings.TrimSpace(tier))
	if p, ok := s.tiers[normalized]; ok {
		return p
	}
	if p, ok := s.tiers["free"]; ok {
		return p
	}
	return quota.TierPolicy{}
}

// AuthorizePost consumes one unit of today's allowance, falling back to a
// credit debit for tiers that allow posting past the allowance. The counter
// increment and the debit are each a single atomic storage operation, so
// concurrent posts can never oversubscribe the allowance or the balance.
func (s *Service) AuthorizePost(ctx context.Context, userID, tier string) (Decision, error) {
	policy := s.Policy(tier)
	dateKey := quota.DateKey(s.now())

	ok, used, err := s.store.IncrementWithinAllowance(ctx, userID, dateKey, policy.DailyAllowance)
	if err != nil {
		return Decision{}, errors.StorageUnavailable(err)
	}
	if ok {
		metrics.RecordPostDecision("allowed", tier)
		return Decision{Allowed: true, PostsUsed: used}, nil
	}

	if !policy.AllowOverage {
		metrics.RecordPostDecision("quota_exceeded", tier)
		return Decision{PostsUsed: used, DenialReason: errors.CodeQuotaExceeded}, nil
	}

	charged, balance, err := s.store.DebitCreditsAndIncrement(ctx, userID, dateKey, s.overageCost, quota.ReasonStoryOverage)
	if err != nil {
		return Decision{}, errors.StorageUnavailable(err)
	}
	if !charged {
		// An empty balance reads as plain quota exhaustion; a balance that
		// exists but cannot cover the cost is a credit problem.
		reason := errors.CodeQuotaExceeded
		if balance > 0 {
			reason = errors.CodeInsufficientCredits
		}
		metrics.RecordPostDecision(string(reason), tier)
		return Decision{PostsUsed: used, CreditBalance: balance, DenialReason: reason}, nil
	}

	metrics.RecordPostDecision("charged", tier)
	metrics.RecordCreditsSpent(s.overageCost)
	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("credits_spent", s.overageCost).
		WithField("balance", balance).
		Info("over-quota post charged")
	return Decision{Allowed: true, Charged: true, PostsUsed: used + 1, CreditBalance: balance}, nil
}

// Usage reports today's consumed allowance for a user.
func (s *Service) Usage(ctx context.Context, userID string) (int, error) {
	used, err := s.store.GetDailyCount(ctx, userID, quota.DateKey(s.now()))
	if err != nil {
		return 0, errors.StorageUnavailable(err)
	}
	return used, nil
}

// TopUp credits a user's balance and records the ledger entry.
func (s *Service) TopUp(ctx context.Context, userID string, amount int64) (quota.LedgerEntry, error) {
	if amount <= 0 {
		return quota.LedgerEntry{}, errors.InvalidInput("amount must be positive")
	}
	entry, err := s.store.AddCredits(ctx, userID, amount, quota.ReasonTopUp)
	if err != nil {
		return quota.LedgerEntry{}, errors.StorageUnavailable(err)
	}
	s.log.WithContext(ctx).
		WithField("user_id", userID).
		WithField("amount", amount).
		Info("credits added")
	return entry, nil
}

// Balance reports a user's current credit balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	balance, err := s.store.CreditBalance(ctx, userID)
	if err != nil {
		return 0, errors.StorageUnavailable(err)
	}
	return balance, nil
}
