// Package engagement defines viewer interactions with stories. One row per
// (story, viewer) pair carries both the viewed and the reacted facts, so a
// single uniqueness domain covers both operations.
package engagement

import "time"

// Reaction is the fixed set of reaction values.
type Reaction string

const (
	ReactionLike  Reaction = "like"
	ReactionLove  Reaction = "love"
	ReactionFire  Reaction = "fire"
	ReactionWow   Reaction = "wow"
	ReactionSad   Reaction = "sad"
	ReactionAngry Reaction = "angry"
)

// Reactions lists all valid reaction values.
var Reactions = []Reaction{ReactionLike, ReactionLove, ReactionFire, ReactionWow, ReactionSad, ReactionAngry}

// Valid reports whether r is one of the fixed reaction values.
func (r Reaction) Valid() bool {
	switch r {
	case ReactionLike, ReactionLove, ReactionFire, ReactionWow, ReactionSad, ReactionAngry:
		return true
	}
	return false
}

// ViewMeta is the optional client-reported metadata attached to a view.
type ViewMeta struct {
	ViewDurationMs int    `json:"view_duration_ms,omitempty"`
	CompletionRate int    `json:"completion_rate,omitempty"` // 0-100
	DeviceType     string `json:"device_type,omitempty"`
}

// View is one viewer's interaction with one story. Unique on
// (StoryID, ViewerID).
type View struct {
	ID             string         `db:"id" json:"id"`
	StoryID        string         `db:"story_id" json:"story_id"`
	ViewerID       string         `db:"viewer_id" json:"viewer_id"`
	ViewedAt       time.Time      `db:"viewed_at" json:"viewed_at"`
	ViewDurationMs int            `db:"view_duration_ms" json:"view_duration_ms,omitempty"`
	CompletionRate int            `db:"completion_rate" json:"completion_rate,omitempty"`
	DeviceType     string         `db:"device_type" json:"device_type,omitempty"`
	Reaction       *Reaction      `db:"reaction" json:"reaction,omitempty"`
	ReactedAt      *time.Time     `db:"reacted_at" json:"reacted_at,omitempty"`
}

// ReactionOutcome describes what an upsert did, so the recorder can decide
// whether the reaction counter moves.
type ReactionOutcome struct {
	// Created is true when no view row existed and the reaction implied one.
	Created bool
	// HadReaction is true when the row already carried a reaction before the
	// upsert; repeat reactions overwrite without touching the counter.
	HadReaction bool
}

// Profile is the minimal public identity joined into viewer disclosure.
type Profile struct {
	UserID      string `db:"user_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// ViewerEntry is one disclosed viewer: the view joined with the viewer's
// public profile.
type ViewerEntry struct {
	View
	Viewer Profile `json:"viewer"`
}
