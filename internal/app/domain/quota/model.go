// Package quota holds the resource-accounting model: daily post counters and
// the paid credit ledger that over-quota posts draw from.
package quota

import "time"

// Unlimited marks a tier with no daily cap.
const Unlimited = -1

// TierPolicy maps a subscription tier onto its posting allowance.
type TierPolicy struct {
	// DailyAllowance is the number of free posts per UTC calendar day;
	// Unlimited disables the cap entirely.
	DailyAllowance int `yaml:"daily_allowance" json:"daily_allowance"`
	// AllowOverage permits posting past the allowance by debiting credits.
	AllowOverage bool `yaml:"allow_overage" json:"allow_overage"`
}

// Unlimited reports whether the tier has no daily cap.
func (p TierPolicy) IsUnlimited() bool { return p.DailyAllowance == Unlimited }

// DailyCounter tracks posts used by a user on one UTC calendar day. Rows are
// created lazily on the first post of the day; a new date key is an implicit
// reset.
type DailyCounter struct {
	UserID    string    `db:"user_id" json:"user_id"`
	DateKey   string    `db:"date_key" json:"date_key"`
	PostsUsed int       `db:"posts_used" json:"posts_used"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry is one append-only credit movement. The balance for a user is
// the running sum of their deltas.
type LedgerEntry struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Delta     int64     `db:"delta" json:"delta"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Ledger reasons.
const (
	ReasonStoryOverage = "story_overage"
	ReasonTopUp        = "top_up"
	ReasonRefund       = "refund"
)

// DateKey returns the UTC calendar-day key for t.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
