// Package story defines the ephemeral story model. A story lives for a fixed
// TTL from creation; expiry is derived from created_at and never mutated
// independently.
package story

import "time"

// Status is the lifecycle state of a story.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// Privacy controls who may consume a story.
type Privacy string

const (
	PrivacyPublic    Privacy = "public"
	PrivacyFollowers Privacy = "followers"
)

// Story is an ephemeral post. Counters are denormalized and maintained by
// atomic store increments, never recomputed aggregates.
type Story struct {
	ID              string    `db:"id" json:"id"`
	AuthorID        string    `db:"author_id" json:"author_id"`
	Caption         string    `db:"caption" json:"caption,omitempty"`
	MediaURL        string    `db:"media_url" json:"media_url"`
	Privacy         Privacy   `db:"privacy" json:"privacy"`
	Status          Status    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
	ViewCount       int64     `db:"view_count" json:"view_count"`
	UniqueViewCount int64     `db:"unique_view_count" json:"unique_view_count"`
	ReactionCount   int64     `db:"reaction_count" json:"reaction_count"`
	ReplyCount      int64     `db:"reply_count" json:"reply_count"`
}

// Content is the author-supplied payload of a new story.
type Content struct {
	Caption  string  `json:"caption"`
	MediaURL string  `json:"media_url"`
	Privacy  Privacy `json:"privacy"`
}

// Classify returns the story's effective status at the given instant. It is
// pure: a story is active iff now is strictly before expires_at and the
// story was not deleted. The stored status may lag behind (the sweeper
// settles it); consumers classify rather than trust the column.
func Classify(s Story, now time.Time) Status {
	if s.Status == StatusDeleted {
		return StatusDeleted
	}
	if now.Before(s.ExpiresAt) {
		return StatusActive
	}
	return StatusExpired
}

// ActiveAt reports whether the story is consumable at the given instant.
func (s Story) ActiveAt(now time.Time) bool {
	return Classify(s, now) == StatusActive
}
