// Package storage declares the persistence contracts of the story layer. The
// store, not the service code, provides the atomicity primitives: conditional
// upsert-increments for quota accounting and unique-key upserts for the
// idempotent view/reaction paths. Every method is a single store round trip.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
)

// ErrNotFound is returned by lookups for absent rows. Stores return it
// directly so services can map it onto the API error taxonomy.
var ErrNotFound = errors.New("not found")

// StoryStore persists stories.
type StoryStore interface {
	CreateStory(ctx context.Context, s story.Story) (story.Story, error)
	GetStory(ctx context.Context, id string) (story.Story, error)
	// ListActiveByAuthor returns the author's stories with expires_at after
	// now and status not deleted, newest first.
	ListActiveByAuthor(ctx context.Context, authorID string, now time.Time) ([]story.Story, error)
	// ListActiveByAuthors is the following-feed query; authorIDs must be
	// non-empty (the service short-circuits the empty case before the store).
	ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]story.Story, error)
	// MarkDeleted flips a story to deleted. ErrNotFound when absent.
	MarkDeleted(ctx context.Context, id string) error
	// ExpireDue settles status=expired on active stories whose expires_at
	// passed, returning how many rows changed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// PurgeBefore physically removes expired/deleted stories (and their
	// views) whose expiry predates the cutoff, returning the purge count.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EngagementStore persists views and reactions. Uniqueness on
// (story_id, viewer_id) is enforced by the store; a violation is the normal
// already-exists branch, not a failure.
type EngagementStore interface {
	// InsertView inserts the view and bumps the parent story's view_count
	// and unique_view_count in the same transaction. A duplicate
	// (story_id, viewer_id) returns created=false with no mutation.
	InsertView(ctx context.Context, v engagement.View) (created bool, err error)
	// UpsertReaction sets the reaction on the (story_id, viewer_id) row,
	// creating the row (an implicit view) when absent, and reports the prior
	// state. Counter bumps implied by the outcome happen in the same
	// transaction: view counters when created, reaction_count when the row
	// had no reaction yet.
	UpsertReaction(ctx context.Context, v engagement.View) (engagement.ReactionOutcome, error)
	// GetView returns the view row for the pair, or ErrNotFound.
	GetView(ctx context.Context, storyID, viewerID string) (engagement.View, error)
	// ListViewsByStory returns all view rows for the story joined with the
	// viewers' public profiles, ordered by viewed_at descending.
	ListViewsByStory(ctx context.Context, storyID string) ([]engagement.ViewerEntry, error)
}

// QuotaStore persists daily counters and the credit ledger.
type QuotaStore interface {
	// IncrementWithinAllowance atomically increments the (userID, dateKey)
	// counter only while the result stays at or under allowance. It reports
	// whether the slot was taken and the counter value observed. A negative
	// allowance means unconditional increment.
	IncrementWithinAllowance(ctx context.Context, userID, dateKey string, allowance int) (ok bool, used int, err error)
	// DebitCreditsAndIncrement debits cost credits and increments the daily
	// counter in one transaction. ok=false (with the current balance) when
	// the balance cannot cover the cost; nothing is mutated in that case.
	DebitCreditsAndIncrement(ctx context.Context, userID, dateKey string, cost int64, reason string) (ok bool, balance int64, err error)
	// GetDailyCount returns posts used for the (userID, dateKey) pair; a
	// missing row is zero, not an error.
	GetDailyCount(ctx context.Context, userID, dateKey string) (int, error)
	// AddCredits appends a positive ledger entry.
	AddCredits(ctx context.Context, userID string, amount int64, reason string) (quota.LedgerEntry, error)
	// CreditBalance returns the running sum of the user's ledger.
	CreditBalance(ctx context.Context, userID string) (int64, error)
}

// FollowStore reads the externally-maintained follow graph.
type FollowStore interface {
	ListFollowedIDs(ctx context.Context, followerID string) ([]string, error)
}
