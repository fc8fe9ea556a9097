package stories

import (
	"context"
	"testing"
	"time"

	quotadomain "github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	quotasvc "github.com/strata-social/story_layer/internal/app/services/quota"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/app/storage/memory"
	"github.com/strata-social/story_layer/internal/errors"
)

func newTestService(store *memory.Store) (*Service, *quotasvc.Service) {
	tiers := map[string]quotadomain.TierPolicy{
		"free":    {DailyAllowance: 1, AllowOverage: true},
		"premium": {DailyAllowance: 10, AllowOverage: true},
	}
	quota := quotasvc.New(store, tiers, 1, nil)
	return New(store, store, quota, 24*time.Hour, nil), quota
}

func TestCreateActiveStory(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)

	st, charged, err := svc.Create(context.Background(), "author-1", "free", story.Content{
		MediaURL: "https://cdn.example/a.jpg",
		Caption:  "  hello  ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if charged {
		t.Fatal("first post must not charge credits")
	}
	if st.Status != story.StatusActive {
		t.Fatalf("status = %s, want active", st.Status)
	}
	if st.Caption != "hello" {
		t.Fatalf("caption not trimmed: %q", st.Caption)
	}
	if st.Privacy != story.PrivacyPublic {
		t.Fatalf("privacy default = %s, want public", st.Privacy)
	}
	if got := st.ExpiresAt.Sub(st.CreatedAt); got != 24*time.Hour {
		t.Fatalf("ttl = %s, want 24h", got)
	}
}

func TestCreateRejectsInvalidContent(t *testing.T) {
	svc, _ := newTestService(memory.New())
	ctx := context.Background()

	if _, _, err := svc.Create(ctx, "author-1", "free", story.Content{}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("missing media_url: got %v", err)
	}
	if _, _, err := svc.Create(ctx, "author-1", "free", story.Content{MediaURL: "u", Privacy: "friends"}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("bad privacy: got %v", err)
	}

	long := make([]rune, MaxCaptionLength+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, _, err := svc.Create(ctx, "author-1", "free", story.Content{MediaURL: "u", Caption: string(long)}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("oversized caption: got %v", err)
	}
}

func TestCreateDeniedPastQuota(t *testing.T) {
	svc, _ := newTestService(memory.New())
	ctx := context.Background()
	content := story.Content{MediaURL: "https://cdn.example/a.jpg"}

	if _, _, err := svc.Create(ctx, "author-1", "free", content); err != nil {
		t.Fatalf("first post: %v", err)
	}
	_, _, err := svc.Create(ctx, "author-1", "free", content)
	if !errors.IsCode(err, errors.CodeQuotaExceeded) {
		t.Fatalf("expected quota_exceeded, got %v", err)
	}
	se := errors.GetServiceError(err)
	if se.HTTPStatus != 409 {
		t.Fatalf("quota denial status = %d, want 409", se.HTTPStatus)
	}
}

func TestCreateChargesCreditPastQuota(t *testing.T) {
	store := memory.New()
	svc, quota := newTestService(store)
	ctx := context.Background()
	content := story.Content{MediaURL: "https://cdn.example/a.jpg"}

	if _, err := quota.TopUp(ctx, "author-1", 1); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, _, err := svc.Create(ctx, "author-1", "free", content); err != nil {
		t.Fatalf("first post: %v", err)
	}

	_, charged, err := svc.Create(ctx, "author-1", "free", content)
	if err != nil {
		t.Fatalf("over-quota post: %v", err)
	}
	if !charged {
		t.Fatal("expected over-quota post to spend a credit")
	}
}

func TestGetClassifiesExpiry(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)
	ctx := context.Background()

	st, _, err := svc.Create(ctx, "author-1", "free", story.Content{MediaURL: "u"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.WithClock(func() time.Time { return st.ExpiresAt.Add(-time.Millisecond) })
	got, err := svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get before expiry: %v", err)
	}
	if got.Status != story.StatusActive {
		t.Fatalf("status just before expiry = %s, want active", got.Status)
	}

	svc.WithClock(func() time.Time { return st.ExpiresAt })
	got, err = svc.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("get at expiry: %v", err)
	}
	if got.Status != story.StatusExpired {
		t.Fatalf("status at expiry = %s, want expired", got.Status)
	}

	if _, err := svc.GetVisible(ctx, st.ID, "viewer-1"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expired story must read as missing, got %v", err)
	}
}

func TestGetVisibleHonorsFollowersPrivacy(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)
	ctx := context.Background()

	st, _, err := svc.Create(ctx, "author-1", "premium", story.Content{MediaURL: "u", Privacy: story.PrivacyFollowers})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.GetVisible(ctx, st.ID, "stranger"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("non-follower must not see a followers story, got %v", err)
	}

	store.PutFollows("follower-1", "author-1")
	if _, err := svc.GetVisible(ctx, st.ID, "follower-1"); err != nil {
		t.Fatalf("follower should see the story: %v", err)
	}
	if _, err := svc.GetVisible(ctx, st.ID, "author-1"); err != nil {
		t.Fatalf("author should always see their story: %v", err)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)
	ctx := context.Background()

	st, _, err := svc.Create(ctx, "author-1", "free", story.Content{MediaURL: "u"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(ctx, st.ID, "someone-else"); !errors.IsCode(err, errors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := svc.Delete(ctx, st.ID, "author-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetVisible(ctx, st.ID, "author-1"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("deleted story must read as missing, got %v", err)
	}
	if err := svc.Delete(ctx, "missing", "author-1"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

type countingStoryStore struct {
	storage.StoryStore
	calls int
}

func (c *countingStoryStore) ListActiveByAuthors(ctx context.Context, ids []string, now time.Time) ([]story.Story, error) {
	c.calls++
	return c.StoryStore.ListActiveByAuthors(ctx, ids, now)
}

func TestFollowingFeedShortCircuitsWithoutFollows(t *testing.T) {
	mem := memory.New()
	counted := &countingStoryStore{StoryStore: mem}
	svc := New(counted, mem, nil, 24*time.Hour, nil)

	feed, err := svc.ListFromFollowed(context.Background(), "loner")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if feed == nil || len(feed) != 0 {
		t.Fatalf("expected empty non-nil feed, got %v", feed)
	}
	if counted.calls != 0 {
		t.Fatalf("story store must not be queried for an empty follow list, got %d calls", counted.calls)
	}
}

func TestFollowingFeedReturnsFollowedAuthorsStories(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)
	ctx := context.Background()

	if _, _, err := svc.Create(ctx, "author-1", "premium", story.Content{MediaURL: "a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.Create(ctx, "author-2", "premium", story.Content{MediaURL: "b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.Create(ctx, "author-3", "premium", story.Content{MediaURL: "c"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.PutFollows("reader", "author-1", "author-3")
	feed, err := svc.ListFromFollowed(ctx, "reader")
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("feed size = %d, want 2", len(feed))
	}
	for _, st := range feed {
		if st.AuthorID == "author-2" {
			t.Fatal("feed contains an unfollowed author")
		}
	}
}

func TestSweeperTickExpiresOverdueStories(t *testing.T) {
	store := memory.New()
	svc, _ := newTestService(store)
	ctx := context.Background()

	st, _, err := svc.Create(ctx, "author-1", "free", story.Content{MediaURL: "u"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sweeper := NewExpirySweeper(store, time.Minute, nil)
	sweeper.tick(ctx)
	if got, _ := store.GetStory(ctx, st.ID); got.Status != story.StatusActive {
		t.Fatalf("fresh story swept: %s", got.Status)
	}

	if _, err := store.ExpireDue(ctx, st.ExpiresAt.Add(time.Second)); err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if got, _ := store.GetStory(ctx, st.ID); got.Status != story.StatusExpired {
		t.Fatalf("status after sweep = %s, want expired", got.Status)
	}
}

func TestRetentionPurgesOldStories(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	st, err := store.CreateStory(ctx, story.Story{
		AuthorID:  "author-1",
		MediaURL:  "u",
		Status:    story.StatusExpired,
		CreatedAt: old,
		ExpiresAt: old.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	job := NewRetentionJob(store, "0 4 * * *", 30*24*time.Hour, nil)
	purged, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	if _, err := store.GetStory(ctx, st.ID); err != storage.ErrNotFound {
		t.Fatalf("expected story gone, got %v", err)
	}
}
