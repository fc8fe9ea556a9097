package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	"github.com/strata-social/story_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development; the mutex stands in for the relational store's transactional
// guarantees.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	stories  map[string]story.Story
	views    map[string]engagement.View // story|viewer -> row
	counters map[string]int             // user|date -> posts used
	ledger   map[string][]quota.LedgerEntry
	balances map[string]int64
	follows  map[string][]string
	profiles map[string]engagement.Profile
}

var _ storage.StoryStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)
var _ storage.QuotaStore = (*Store)(nil)
var _ storage.FollowStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:   1,
		stories:  make(map[string]story.Story),
		views:    make(map[string]engagement.View),
		counters: make(map[string]int),
		ledger:   make(map[string][]quota.LedgerEntry),
		balances: make(map[string]int64),
		follows:  make(map[string][]string),
		profiles: make(map[string]engagement.Profile),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

func pairKey(storyID, viewerID string) string { return storyID + "|" + viewerID }

func counterKey(userID, dateKey string) string { return userID + "|" + dateKey }

// StoryStore implementation ---------------------------------------------------

func (s *Store) CreateStory(_ context.Context, st story.Story) (story.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = s.nextIDLocked()
	} else if _, exists := s.stories[st.ID]; exists {
		return story.Story{}, fmt.Errorf("story %s already exists", st.ID)
	}

	s.stories[st.ID] = st
	return st, nil
}

func (s *Store) GetStory(_ context.Context, id string) (story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stories[id]
	if !ok {
		return story.Story{}, storage.ErrNotFound
	}
	return st, nil
}

func (s *Store) ListActiveByAuthor(_ context.Context, authorID string, now time.Time) ([]story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]story.Story, 0)
	for _, st := range s.stories {
		if st.AuthorID == authorID && st.ActiveAt(now) {
			result = append(result, st)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) ListActiveByAuthors(_ context.Context, authorIDs []string, now time.Time) ([]story.Story, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		wanted[id] = true
	}

	result := make([]story.Story, 0)
	for _, st := range s.stories {
		if wanted[st.AuthorID] && st.ActiveAt(now) {
			result = append(result, st)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *Store) MarkDeleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stories[id]
	if !ok {
		return storage.ErrNotFound
	}
	st.Status = story.StatusDeleted
	s.stories[id] = st
	return nil
}

func (s *Store) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, st := range s.stories {
		if st.Status == story.StatusActive && !now.Before(st.ExpiresAt) {
			st.Status = story.StatusExpired
			s.stories[id] = st
			n++
		}
	}
	return n, nil
}

func (s *Store) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, st := range s.stories {
		if st.Status == story.StatusActive || !st.ExpiresAt.Before(cutoff) {
			continue
		}
		delete(s.stories, id)
		for key, v := range s.views {
			if v.StoryID == id {
				delete(s.views, key)
			}
		}
		n++
	}
	return n, nil
}

// EngagementStore implementation ----------------------------------------------

func (s *Store) InsertView(_ context.Context, v engagement.View) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stories[v.StoryID]
	if !ok {
		return false, storage.ErrNotFound
	}

	key := pairKey(v.StoryID, v.ViewerID)
	if _, exists := s.views[key]; exists {
		return false, nil
	}

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	}
	s.views[key] = v

	st.ViewCount++
	st.UniqueViewCount++
	s.stories[st.ID] = st
	return true, nil
}

func (s *Store) UpsertReaction(_ context.Context, v engagement.View) (engagement.ReactionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stories[v.StoryID]
	if !ok {
		return engagement.ReactionOutcome{}, storage.ErrNotFound
	}

	key := pairKey(v.StoryID, v.ViewerID)
	existing, exists := s.views[key]
	if !exists {
		if v.ID == "" {
			v.ID = s.nextIDLocked()
		}
		s.views[key] = v
		st.ViewCount++
		st.UniqueViewCount++
		st.ReactionCount++
		s.stories[st.ID] = st
		return engagement.ReactionOutcome{Created: true}, nil
	}

	outcome := engagement.ReactionOutcome{HadReaction: existing.Reaction != nil}
	existing.Reaction = v.Reaction
	existing.ReactedAt = v.ReactedAt
	s.views[key] = existing

	if !outcome.HadReaction {
		st.ReactionCount++
		s.stories[st.ID] = st
	}
	return outcome, nil
}

func (s *Store) GetView(_ context.Context, storyID, viewerID string) (engagement.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[pairKey(storyID, viewerID)]
	if !ok {
		return engagement.View{}, storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) ListViewsByStory(_ context.Context, storyID string) ([]engagement.ViewerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]engagement.ViewerEntry, 0)
	for _, v := range s.views {
		if v.StoryID != storyID {
			continue
		}
		entry := engagement.ViewerEntry{View: v}
		if p, ok := s.profiles[v.ViewerID]; ok {
			entry.Viewer = p
		} else {
			entry.Viewer = engagement.Profile{UserID: v.ViewerID}
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ViewedAt.Equal(result[j].ViewedAt) {
			return result[i].View.ID > result[j].View.ID
		}
		return result[i].ViewedAt.After(result[j].ViewedAt)
	})
	return result, nil
}

// QuotaStore implementation ---------------------------------------------------

func (s *Store) IncrementWithinAllowance(_ context.Context, userID, dateKey string, allowance int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := counterKey(userID, dateKey)
	used := s.counters[key]
	if allowance >= 0 && used >= allowance {
		return false, used, nil
	}
	used++
	s.counters[key] = used
	return true, used, nil
}

func (s *Store) DebitCreditsAndIncrement(_ context.Context, userID, dateKey string, cost int64, reason string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[userID]
	if balance < cost {
		return false, balance, nil
	}

	balance -= cost
	s.balances[userID] = balance
	s.ledger[userID] = append(s.ledger[userID], quota.LedgerEntry{
		ID:        s.nextIDLocked(),
		UserID:    userID,
		Delta:     -cost,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	s.counters[counterKey(userID, dateKey)]++
	return true, balance, nil
}

func (s *Store) GetDailyCount(_ context.Context, userID, dateKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[counterKey(userID, dateKey)], nil
}

func (s *Store) AddCredits(_ context.Context, userID string, amount int64, reason string) (quota.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := quota.LedgerEntry{
		ID:        s.nextIDLocked(),
		UserID:    userID,
		Delta:     amount,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	s.ledger[userID] = append(s.ledger[userID], entry)
	s.balances[userID] += amount
	return entry, nil
}

func (s *Store) CreditBalance(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[userID], nil
}

// FollowStore implementation --------------------------------------------------

func (s *Store) ListFollowedIDs(_ context.Context, followerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.follows[followerID]...), nil
}

// Seed helpers ----------------------------------------------------------------

// PutFollows replaces the follow list for a user.
func (s *Store) PutFollows(followerID string, followedIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follows[followerID] = append([]string(nil), followedIDs...)
}

// PutProfile stores a public profile for viewer disclosure joins.
func (s *Store) PutProfile(p engagement.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func sortNewestFirst(stories []story.Story) {
	sort.Slice(stories, func(i, j int) bool {
		if stories[i].CreatedAt.Equal(stories[j].CreatedAt) {
			return stories[i].ID > stories[j].ID
		}
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
}
