// Package disclosure exposes engagement data back to story authors.
package disclosure

import (
	"context"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	storiessvc "github.com/strata-social/story_layer/internal/app/services/stories"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/errors"
	"github.com/strata-social/story_layer/internal/logging"
)

// Service answers who-saw-my-story queries for authors.
type Service struct {
	store   storage.EngagementStore
	stories *storiessvc.Service
	log     *logging.Logger
}

// New constructs a disclosure service.
func New(store storage.EngagementStore, stories *storiessvc.Service, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("disclosure")
	}
	return &Service{store: store, stories: stories, log: log}
}

// ListViewers returns the story's viewers, newest first, for its author only.
// Authors keep access after expiry; deleted stories read as missing.
func (s *Service) ListViewers(ctx context.Context, storyID, requesterID string) ([]engagement.ViewerEntry, error) {
	st, err := s.stories.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if st.Status == story.StatusDeleted {
		return nil, errors.NotFound("story", storyID)
	}
	if st.AuthorID != requesterID {
		return nil, errors.Forbidden("only the author can see story viewers")
	}

	entries, err := s.store.ListViewsByStory(ctx, storyID)
	if err != nil {
		return nil, errors.StorageUnavailable(err)
	}
	return entries, nil
}
