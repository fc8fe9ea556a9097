package memory

import (
	"context"
	"testing"
	"time"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	"github.com/strata-social/story_layer/internal/app/storage"
)

func seedStory(t *testing.T, s *Store, authorID string) story.Story {
	t.Helper()
	now := time.Now().UTC()
	st, err := s.CreateStory(context.Background(), story.Story{
		AuthorID:  authorID,
		MediaURL:  "https://cdn.example/a.jpg",
		Privacy:   story.PrivacyPublic,
		Status:    story.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed story: %v", err)
	}
	return st
}

func TestInsertViewDeduplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	st := seedStory(t, s, "author-1")

	created, err := s.InsertView(ctx, engagement.View{StoryID: st.ID, ViewerID: "v1", ViewedAt: time.Now()})
	if err != nil || !created {
		t.Fatalf("first view: created=%v err=%v", created, err)
	}
	created, err = s.InsertView(ctx, engagement.View{StoryID: st.ID, ViewerID: "v1", ViewedAt: time.Now()})
	if err != nil || created {
		t.Fatalf("repeat view: created=%v err=%v", created, err)
	}

	got, _ := s.GetStory(ctx, st.ID)
	if got.ViewCount != 1 || got.UniqueViewCount != 1 {
		t.Fatalf("counters = %d/%d, want 1/1", got.ViewCount, got.UniqueViewCount)
	}

	if _, err := s.InsertView(ctx, engagement.View{StoryID: "missing", ViewerID: "v1"}); err != storage.ErrNotFound {
		t.Fatalf("missing story err = %v, want ErrNotFound", err)
	}
}

func TestUpsertReactionCountsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	st := seedStory(t, s, "author-1")

	like := engagement.ReactionLike
	now := time.Now().UTC()
	outcome, err := s.UpsertReaction(ctx, engagement.View{StoryID: st.ID, ViewerID: "v1", ViewedAt: now, Reaction: &like, ReactedAt: &now})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !outcome.Created {
		t.Fatal("reaction without view should create the view row")
	}

	love := engagement.ReactionLove
	outcome, err = s.UpsertReaction(ctx, engagement.View{StoryID: st.ID, ViewerID: "v1", ViewedAt: now, Reaction: &love, ReactedAt: &now})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if outcome.Created || !outcome.HadReaction {
		t.Fatalf("replacement outcome: %+v", outcome)
	}

	got, _ := s.GetStory(ctx, st.ID)
	if got.ReactionCount != 1 || got.UniqueViewCount != 1 {
		t.Fatalf("counters = reactions %d unique %d, want 1/1", got.ReactionCount, got.UniqueViewCount)
	}
}

func TestIncrementWithinAllowanceBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := s.IncrementWithinAllowance(ctx, "u1", "2026-08-31", 2)
		if err != nil || !ok {
			t.Fatalf("increment %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, used, err := s.IncrementWithinAllowance(ctx, "u1", "2026-08-31", 2)
	if err != nil {
		t.Fatalf("deny path: %v", err)
	}
	if ok || used != 2 {
		t.Fatalf("expected denial at 2, got ok=%v used=%d", ok, used)
	}

	// A new date key starts a fresh counter.
	if ok, _, _ := s.IncrementWithinAllowance(ctx, "u1", "2026-09-01", 2); !ok {
		t.Fatal("new day must reset the allowance")
	}
}

func TestDebitCreditsAndIncrement(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.AddCredits(ctx, "u1", 2, quota.ReasonTopUp); err != nil {
		t.Fatalf("add credits: %v", err)
	}

	ok, balance, err := s.DebitCreditsAndIncrement(ctx, "u1", "2026-08-31", 1, quota.ReasonStoryOverage)
	if err != nil || !ok || balance != 1 {
		t.Fatalf("debit: ok=%v balance=%d err=%v", ok, balance, err)
	}

	ok, balance, err = s.DebitCreditsAndIncrement(ctx, "u1", "2026-08-31", 5, quota.ReasonStoryOverage)
	if err != nil {
		t.Fatalf("over-debit: %v", err)
	}
	if ok || balance != 1 {
		t.Fatalf("over-debit must refuse and leave balance, got ok=%v balance=%d", ok, balance)
	}

	used, _ := s.GetDailyCount(ctx, "u1", "2026-08-31")
	if used != 1 {
		t.Fatalf("counter = %d, want 1 (only the successful debit increments)", used)
	}

	ledgerBalance, _ := s.CreditBalance(ctx, "u1")
	if ledgerBalance != 1 {
		t.Fatalf("ledger balance = %d, want 1", ledgerBalance)
	}
}

func TestExpireDueAndPurge(t *testing.T) {
	s := New()
	ctx := context.Background()
	st := seedStory(t, s, "author-1")

	expired, err := s.ExpireDue(ctx, st.ExpiresAt.Add(time.Second))
	if err != nil || expired != 1 {
		t.Fatalf("expire due: n=%d err=%v", expired, err)
	}
	got, _ := s.GetStory(ctx, st.ID)
	if got.Status != story.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	if _, err := s.InsertView(ctx, engagement.View{StoryID: st.ID, ViewerID: "v1", ViewedAt: time.Now()}); err != nil {
		t.Fatalf("view for purge setup: %v", err)
	}

	purged, err := s.PurgeBefore(ctx, st.ExpiresAt.Add(time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("purge: n=%d err=%v", purged, err)
	}
	if _, err := s.GetStory(ctx, st.ID); err != storage.ErrNotFound {
		t.Fatalf("purged story err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetView(ctx, st.ID, "v1"); err != storage.ErrNotFound {
		t.Fatalf("views must go with their story, err = %v", err)
	}
}

func TestListActiveByAuthorsOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, author := range []string{"a1", "a2", "a1"} {
		_, err := s.CreateStory(ctx, story.Story{
			AuthorID:  author,
			MediaURL:  "u",
			Status:    story.StatusActive,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			ExpiresAt: base.Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	list, err := s.ListActiveByAuthors(ctx, []string{"a1"}, base)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].CreatedAt.Before(list[1].CreatedAt) {
		t.Fatal("expected newest-first ordering")
	}
}
