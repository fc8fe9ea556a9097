// Package engagement records story views and reactions.
package engagement

import (
	"context"
	"time"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/metrics"
	storiessvc "github.com/strata-social/story_layer/internal/app/services/stories"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/errors"
	"github.com/strata-social/story_layer/internal/logging"
)

// ViewResult describes what a view attempt did.
type ViewResult int

const (
	// ViewRecorded means a new view row was written and counters bumped.
	ViewRecorded ViewResult = iota
	// ViewDuplicate means the viewer had already seen the story.
	ViewDuplicate
	// ViewSkippedOwner means the author looked at their own story.
	ViewSkippedOwner
)

// Service records views and reactions against active stories.
type Service struct {
	store   storage.EngagementStore
	stories *storiessvc.Service
	now     func() time.Time
	log     *logging.Logger
}

// New constructs an engagement service.
func New(store storage.EngagementStore, stories *storiessvc.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("engagement")
	}
	return &Service{
		store:   store,
		stories: stories,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordView marks the story as seen by the viewer. Repeat views and the
// author's own views are acknowledged without touching counters.
func (s *Service) RecordView(ctx context.Context, storyID, viewerID string, meta engagement.ViewMeta) (ViewResult, error) {
	st, err := s.stories.GetVisible(ctx, storyID, viewerID)
	if err != nil {
		return ViewDuplicate, err
	}
	if st.AuthorID == viewerID {
		metrics.RecordView("skipped")
		return ViewSkippedOwner, nil
	}
	if meta.CompletionRate < 0 || meta.CompletionRate > 100 {
		return ViewDuplicate, errors.InvalidInput("completion_rate must be between 0 and 100")
	}

	created, err := s.store.InsertView(ctx, engagement.View{
		StoryID:        storyID,
		ViewerID:       viewerID,
		ViewedAt:       s.now(),
		ViewDurationMs: meta.ViewDurationMs,
		CompletionRate: meta.CompletionRate,
		DeviceType:     meta.DeviceType,
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return ViewDuplicate, errors.NotFound("story", storyID)
		}
		return ViewDuplicate, errors.StorageUnavailable(err)
	}
	if !created {
		metrics.RecordView("duplicate")
		return ViewDuplicate, nil
	}
	metrics.RecordView("created")
	return ViewRecorded, nil
}

// RecordReaction sets the viewer's reaction on the story, replacing any
// previous one. Reacting without a prior view records the view implicitly.
func (s *Service) RecordReaction(ctx context.Context, storyID, viewerID string, reaction engagement.Reaction) (engagement.ReactionOutcome, error) {
	if !reaction.Valid() {
		return engagement.ReactionOutcome{}, errors.InvalidInput("unknown reaction type")
	}
	if _, err := s.stories.GetVisible(ctx, storyID, viewerID); err != nil {
		return engagement.ReactionOutcome{}, err
	}

	now := s.now()
	outcome, err := s.store.UpsertReaction(ctx, engagement.View{
		StoryID:   storyID,
		ViewerID:  viewerID,
		ViewedAt:  now,
		Reaction:  &reaction,
		ReactedAt: &now,
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return engagement.ReactionOutcome{}, errors.NotFound("story", storyID)
		}
		return engagement.ReactionOutcome{}, errors.StorageUnavailable(err)
	}

	metrics.RecordReaction(string(reaction))
	s.log.WithContext(ctx).
		WithField("story_id", storyID).
		WithField("reaction", string(reaction)).
		Debug("reaction recorded")
	return outcome, nil
}
