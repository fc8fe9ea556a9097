package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	"github.com/strata-social/story_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. All atomicity
// the services rely on lives here: conditional upsert-increments for quota
// accounting, unique-key inserts for view dedup, and counter bumps inside the
// same transaction as the row they follow.
type Store struct {
	db *sqlx.DB
}

var _ storage.StoryStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)
var _ storage.QuotaStore = (*Store)(nil)
var _ storage.FollowStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

func pqCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

// --- StoryStore -------------------------------------------------------------

func (s *Store) CreateStory(ctx context.Context, st story.Story) (story.Story, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, author_id, caption, media_url, privacy, status,
			created_at, expires_at, view_count, unique_view_count, reaction_count, reply_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, 0, 0)
	`, st.ID, st.AuthorID, st.Caption, st.MediaURL, st.Privacy, st.Status, st.CreatedAt, st.ExpiresAt)
	if err != nil {
		return story.Story{}, err
	}
	return st, nil
}

func (s *Store) GetStory(ctx context.Context, id string) (story.Story, error) {
	var st story.Story
	err := s.db.GetContext(ctx, &st, `
		SELECT id, author_id, caption, media_url, privacy, status, created_at,
			expires_at, view_count, unique_view_count, reaction_count, reply_count
		FROM stories
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return story.Story{}, storage.ErrNotFound
	}
	if err != nil {
		return story.Story{}, err
	}
	return st, nil
}

func (s *Store) ListActiveByAuthor(ctx context.Context, authorID string, now time.Time) ([]story.Story, error) {
	stories := make([]story.Story, 0)
	err := s.db.SelectContext(ctx, &stories, `
		SELECT id, author_id, caption, media_url, privacy, status, created_at,
			expires_at, view_count, unique_view_count, reaction_count, reply_count
		FROM stories
		WHERE author_id = $1 AND status <> 'deleted' AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, authorID, now)
	return stories, err
}

func (s *Store) ListActiveByAuthors(ctx context.Context, authorIDs []string, now time.Time) ([]story.Story, error) {
	stories := make([]story.Story, 0)
	err := s.db.SelectContext(ctx, &stories, `
		SELECT id, author_id, caption, media_url, privacy, status, created_at,
			expires_at, view_count, unique_view_count, reaction_count, reply_count
		FROM stories
		WHERE author_id = ANY($1) AND status <> 'deleted' AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`, pq.Array(authorIDs), now)
	return stories, err
}

func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stories SET status = 'deleted' WHERE id = $1 AND status <> 'deleted'
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stories SET status = 'expired' WHERE status = 'active' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	// story_views rows go with their story via ON DELETE CASCADE.
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM stories
		WHERE status IN ('expired', 'deleted') AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// --- EngagementStore ---------------------------------------------------------

func (s *Store) InsertView(ctx context.Context, v engagement.View) (created bool, err error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// The unique key on (story_id, viewer_id) makes re-views a no-op; a
	// conflict is the normal already-viewed branch.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO story_views (id, story_id, viewer_id, viewed_at, view_duration_ms, completion_rate, device_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (story_id, viewer_id) DO NOTHING
	`, v.ID, v.StoryID, v.ViewerID, v.ViewedAt, v.ViewDurationMs, v.CompletionRate, v.DeviceType)
	if err != nil {
		if pqCode(err, pqForeignKeyViolation) {
			err = storage.ErrNotFound
		}
		return false, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, tx.Commit()
	}

	// Counter bump rides in the same transaction: there is no path that
	// inserts the view but skips the increment.
	if _, err = tx.ExecContext(ctx, `
		UPDATE stories SET view_count = view_count + 1, unique_view_count = unique_view_count + 1
		WHERE id = $1
	`, v.StoryID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) UpsertReaction(ctx context.Context, v engagement.View) (outcome engagement.ReactionOutcome, err error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return engagement.ReactionOutcome{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Lock the pair row if it exists so concurrent reactions serialize on it.
	// Two attempts cover the insert race: a competing transaction that wins
	// the insert makes our ON CONFLICT no-op, and the second select then
	// finds (and locks) its row.
	for attempt := 0; attempt < 2; attempt++ {
		var prior sql.NullString
		err = tx.QueryRowContext(ctx, `
			SELECT reaction FROM story_views WHERE story_id = $1 AND viewer_id = $2 FOR UPDATE
		`, v.StoryID, v.ViewerID).Scan(&prior)

		if err == nil {
			if _, err = tx.ExecContext(ctx, `
				UPDATE story_views SET reaction = $3, reacted_at = $4
				WHERE story_id = $1 AND viewer_id = $2
			`, v.StoryID, v.ViewerID, v.Reaction, v.ReactedAt); err != nil {
				return engagement.ReactionOutcome{}, err
			}
			outcome = engagement.ReactionOutcome{HadReaction: prior.Valid}
			if !prior.Valid {
				if _, err = tx.ExecContext(ctx, `
					UPDATE stories SET reaction_count = reaction_count + 1 WHERE id = $1
				`, v.StoryID); err != nil {
					return engagement.ReactionOutcome{}, err
				}
			}
			return outcome, tx.Commit()
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return engagement.ReactionOutcome{}, err
		}

		var result sql.Result
		result, err = tx.ExecContext(ctx, `
			INSERT INTO story_views (id, story_id, viewer_id, viewed_at, reaction, reacted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (story_id, viewer_id) DO NOTHING
		`, v.ID, v.StoryID, v.ViewerID, v.ViewedAt, v.Reaction, v.ReactedAt)
		if err != nil {
			if pqCode(err, pqForeignKeyViolation) {
				err = storage.ErrNotFound
			}
			return engagement.ReactionOutcome{}, err
		}
		if rows, _ := result.RowsAffected(); rows == 1 {
			// A reaction implies an implicit view.
			if _, err = tx.ExecContext(ctx, `
				UPDATE stories
				SET view_count = view_count + 1, unique_view_count = unique_view_count + 1,
					reaction_count = reaction_count + 1
				WHERE id = $1
			`, v.StoryID); err != nil {
				return engagement.ReactionOutcome{}, err
			}
			return engagement.ReactionOutcome{Created: true}, tx.Commit()
		}
	}

	err = errors.New("reaction upsert did not converge")
	return engagement.ReactionOutcome{}, err
}

func (s *Store) GetView(ctx context.Context, storyID, viewerID string) (engagement.View, error) {
	var v engagement.View
	err := s.db.GetContext(ctx, &v, `
		SELECT id, story_id, viewer_id, viewed_at, view_duration_ms, completion_rate,
			device_type, reaction, reacted_at
		FROM story_views
		WHERE story_id = $1 AND viewer_id = $2
	`, storyID, viewerID)
	if errors.Is(err, sql.ErrNoRows) {
		return engagement.View{}, storage.ErrNotFound
	}
	if err != nil {
		return engagement.View{}, err
	}
	return v, nil
}

func (s *Store) ListViewsByStory(ctx context.Context, storyID string) ([]engagement.ViewerEntry, error) {
	entries := make([]engagement.ViewerEntry, 0)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT v.id, v.story_id, v.viewer_id, v.viewed_at, v.view_duration_ms,
			v.completion_rate, v.device_type, v.reaction, v.reacted_at,
			COALESCE(p.user_id, v.viewer_id) AS "viewer.user_id",
			COALESCE(p.display_name, '') AS "viewer.display_name",
			COALESCE(p.avatar_url, '') AS "viewer.avatar_url"
		FROM story_views v
		LEFT JOIN user_profiles p ON p.user_id = v.viewer_id
		WHERE v.story_id = $1
		ORDER BY v.viewed_at DESC, v.id DESC
	`, storyID)
	return entries, err
}

// --- QuotaStore --------------------------------------------------------------

func (s *Store) IncrementWithinAllowance(ctx context.Context, userID, dateKey string, allowance int) (bool, int, error) {
	if allowance == 0 {
		used, err := s.GetDailyCount(ctx, userID, dateKey)
		return false, used, err
	}

	if allowance < 0 {
		var used int
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO daily_quota_counters (user_id, date_key, posts_used, updated_at)
			VALUES ($1, $2, 1, now())
			ON CONFLICT (user_id, date_key)
			DO UPDATE SET posts_used = daily_quota_counters.posts_used + 1, updated_at = now()
			RETURNING posts_used
		`, userID, dateKey).Scan(&used)
		return err == nil, used, err
	}

	// Conditional upsert-increment: the guard on the conflict branch means
	// two concurrent posts can never both take the last slot. No row comes
	// back when the counter is already at the allowance.
	var used int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO daily_quota_counters (user_id, date_key, posts_used, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (user_id, date_key)
		DO UPDATE SET posts_used = daily_quota_counters.posts_used + 1, updated_at = now()
		WHERE daily_quota_counters.posts_used < $3
		RETURNING posts_used
	`, userID, dateKey, allowance).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		used, err := s.GetDailyCount(ctx, userID, dateKey)
		return false, used, err
	}
	if err != nil {
		return false, 0, err
	}
	return true, used, nil
}

func (s *Store) DebitCreditsAndIncrement(ctx context.Context, userID, dateKey string, cost int64, reason string) (ok bool, balance int64, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback()
		}
	}()

	// Conditional debit against the materialized balance row; the balance
	// guard is what keeps two concurrent over-quota posts from both spending
	// the last credit.
	err = tx.QueryRowContext(ctx, `
		UPDATE credit_balances
		SET balance = balance - $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`, userID, cost).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE((SELECT balance FROM credit_balances WHERE user_id = $1), 0)
		`, userID).Scan(&balance)
		return false, balance, err
	}
	if err != nil {
		return false, 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.NewString(), userID, -cost, reason); err != nil {
		return false, 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO daily_quota_counters (user_id, date_key, posts_used, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (user_id, date_key)
		DO UPDATE SET posts_used = daily_quota_counters.posts_used + 1, updated_at = now()
	`, userID, dateKey); err != nil {
		return false, 0, err
	}

	if err = tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, balance, nil
}

func (s *Store) GetDailyCount(ctx context.Context, userID, dateKey string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT posts_used FROM daily_quota_counters WHERE user_id = $1 AND date_key = $2), 0)
	`, userID, dateKey).Scan(&used)
	return used, err
}

func (s *Store) AddCredits(ctx context.Context, userID string, amount int64, reason string) (entry quota.LedgerEntry, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return quota.LedgerEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	entry = quota.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Delta:     amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, user_id, delta, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.UserID, entry.Delta, entry.Reason, entry.CreatedAt); err != nil {
		return quota.LedgerEntry{}, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO credit_balances (user_id, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id)
		DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()
	`, entry.UserID, entry.Delta); err != nil {
		return quota.LedgerEntry{}, err
	}

	if err = tx.Commit(); err != nil {
		return quota.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Store) CreditBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1
	`, userID).Scan(&balance)
	return balance, err
}

// --- FollowStore -------------------------------------------------------------

func (s *Store) ListFollowedIDs(ctx context.Context, followerID string) ([]string, error) {
	ids := make([]string, 0)
	err := s.db.SelectContext(ctx, &ids, `
		SELECT followee_id FROM follows WHERE follower_id = $1 ORDER BY followee_id
	`, followerID)
	return ids, err
}
