// Package stories manages the story lifecycle: posting under quota, lookup
// with expiry classification, feeds, and deletion.
package stories

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/strata-social/story_layer/internal/app/domain/story"
	quotasvc "github.com/strata-social/story_layer/internal/app/services/quota"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/errors"
	"github.com/strata-social/story_layer/internal/logging"
)

// MaxCaptionLength bounds story captions in runes.
const MaxCaptionLength = 2200

// Service coordinates story creation, lookup and feeds.
type Service struct {
	store   storage.StoryStore
	follows storage.FollowStore
	quota   *quotasvc.Service
	ttl     time.Duration
	now     func() time.Time
	log     *logging.Logger
}

// New constructs a story service. A nil quota service disables quota
// enforcement, which only tests should want.
func New(store storage.StoryStore, follows storage.FollowStore, quota *quotasvc.Service, ttl time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("stories")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:   store,
		follows: follows,
		quota:   quota,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create posts a new story for the author after consuming quota. The returned
// bool reports whether posting spent a paid credit.
func (s *Service) Create(ctx context.Context, authorID, tier string, content story.Content) (story.Story, bool, error) {
	if err := validateContent(&content); err != nil {
		return story.Story{}, false, err
	}

	charged := false
	if s.quota != nil {
		decision, err := s.quota.AuthorizePost(ctx, authorID, tier)
		if err != nil {
			return story.Story{}, false, err
		}
		if !decision.Allowed {
			policy := s.quota.Policy(tier)
			switch decision.DenialReason {
			case errors.CodeInsufficientCredits:
				return story.Story{}, false, errors.InsufficientCredits(decision.CreditBalance, s.quota.OverageCost())
			default:
				return story.Story{}, false, errors.QuotaExceeded(decision.PostsUsed, policy.DailyAllowance)
			}
		}
		charged = decision.Charged
	}

	now := s.now()
	created, err := s.store.CreateStory(ctx, story.Story{
		AuthorID:  authorID,
		Caption:   content.Caption,
		MediaURL:  content.MediaURL,
		Privacy:   content.Privacy,
		Status:    story.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return story.Story{}, false, errors.StorageUnavailable(err)
	}

	s.log.WithContext(ctx).
		WithField("story_id", created.ID).
		WithField("author_id", authorID).
		WithField("charged", charged).
		Info("story posted")
	return created, charged, nil
}

// Get fetches a story with its status classified against the clock. The
// persisted status may lag behind expiry; callers always see the derived one.
func (s *Service) Get(ctx context.Context, id string) (story.Story, error) {
	st, err := s.store.GetStory(ctx, id)
	if err != nil {
		if err == storage.ErrNotFound {
			return story.Story{}, errors.NotFound("story", id)
		}
		return story.Story{}, errors.StorageUnavailable(err)
	}
	st.Status = story.Classify(st, s.now())
	return st, nil
}

// GetVisible fetches a story the viewer is allowed to see. Expired and
// deleted stories are indistinguishable from missing ones.
func (s *Service) GetVisible(ctx context.Context, id, viewerID string) (story.Story, error) {
	st, err := s.Get(ctx, id)
	if err != nil {
		return story.Story{}, err
	}
	if st.Status != story.StatusActive {
		return story.Story{}, errors.NotFound("story", id)
	}
	visible, err := s.visibleTo(ctx, st, viewerID)
	if err != nil {
		return story.Story{}, err
	}
	if !visible {
		return story.Story{}, errors.NotFound("story", id)
	}
	return st, nil
}

// Delete removes the author's own story.
func (s *Service) Delete(ctx context.Context, id, requesterID string) error {
	st, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.AuthorID != requesterID {
		return errors.Forbidden("only the author can delete a story")
	}
	if err := s.store.MarkDeleted(ctx, id); err != nil {
		if err == storage.ErrNotFound {
			return errors.NotFound("story", id)
		}
		return errors.StorageUnavailable(err)
	}
	s.log.WithContext(ctx).
		WithField("story_id", id).
		WithField("author_id", requesterID).
		Info("story deleted")
	return nil
}

// ListOwn returns the author's active stories, newest first.
func (s *Service) ListOwn(ctx context.Context, authorID string) ([]story.Story, error) {
	now := s.now()
	list, err := s.store.ListActiveByAuthor(ctx, authorID, now)
	if err != nil {
		return nil, errors.StorageUnavailable(err)
	}
	return classifyActive(list, now), nil
}

// ListFromFollowed returns active stories from all authors the user follows.
// A user who follows nobody gets an empty feed without touching the story
// store.
func (s *Service) ListFromFollowed(ctx context.Context, userID string) ([]story.Story, error) {
	followed, err := s.follows.ListFollowedIDs(ctx, userID)
	if err != nil {
		return nil, errors.StorageUnavailable(err)
	}
	if len(followed) == 0 {
		return []story.Story{}, nil
	}

	now := s.now()
	list, err := s.store.ListActiveByAuthors(ctx, followed, now)
	if err != nil {
		return nil, errors.StorageUnavailable(err)
	}
	return classifyActive(list, now), nil
}

func (s *Service) visibleTo(ctx context.Context, st story.Story, viewerID string) (bool, error) {
	if st.AuthorID == viewerID || st.Privacy != story.PrivacyFollowers {
		return true, nil
	}
	if s.follows == nil {
		return false, nil
	}
	followed, err := s.follows.ListFollowedIDs(ctx, viewerID)
	if err != nil {
		return false, errors.StorageUnavailable(err)
	}
	for _, id := range followed {
		if id == st.AuthorID {
			return true, nil
		}
	}
	return false, nil
}

func classifyActive(list []story.Story, now time.Time) []story.Story {
	out := make([]story.Story, 0, len(list))
	for _, st := range list {
		if story.Classify(st, now) == story.StatusActive {
			st.Status = story.StatusActive
			out = append(out, st)
		}
	}
	return out
}

func validateContent(c *story.Content) error {
	c.Caption = strings.TrimSpace(c.Caption)
	c.MediaURL = strings.TrimSpace(c.MediaURL)
	if c.MediaURL == "" {
		return errors.InvalidInput("media_url is required")
	}
	if utf8.RuneCountInString(c.Caption) > MaxCaptionLength {
		return errors.InvalidInput("caption exceeds maximum length")
	}
	switch c.Privacy {
	case "":
		c.Privacy = story.PrivacyPublic
	case story.PrivacyPublic, story.PrivacyFollowers:
	default:
		return errors.InvalidInput("privacy must be public or followers")
	}
	return nil
}
