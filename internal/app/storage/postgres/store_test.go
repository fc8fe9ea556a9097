package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/strata-social/story_layer/internal/app/domain/engagement"
	"github.com/strata-social/story_layer/internal/app/domain/quota"
	"github.com/strata-social/story_layer/internal/app/domain/story"
	"github.com/strata-social/story_layer/internal/platform/migrations"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	st, err := store.CreateStory(ctx, story.Story{
		AuthorID:  "author-1",
		Caption:   "sunset",
		MediaURL:  "https://cdn.example/sunset.jpg",
		Privacy:   story.PrivacyPublic,
		Status:    story.StatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}

	created, err := store.InsertView(ctx, engagement.View{StoryID: st.ID, ViewerID: "viewer-1", ViewedAt: now})
	if err != nil {
		t.Fatalf("insert view: %v", err)
	}
	if !created {
		t.Fatal("expected first view to be recorded")
	}
	created, err = store.InsertView(ctx, engagement.View{StoryID: st.ID, ViewerID: "viewer-1", ViewedAt: now})
	if err != nil {
		t.Fatalf("repeat view: %v", err)
	}
	if created {
		t.Fatal("expected repeat view to be a no-op")
	}

	reaction := engagement.ReactionLike
	outcome, err := store.UpsertReaction(ctx, engagement.View{StoryID: st.ID, ViewerID: "viewer-1", ViewedAt: now, Reaction: &reaction, ReactedAt: &now})
	if err != nil {
		t.Fatalf("upsert reaction: %v", err)
	}
	if outcome.Created || outcome.HadReaction {
		t.Fatalf("expected reaction on existing view without prior reaction, got %+v", outcome)
	}
	replacement := engagement.ReactionFire
	outcome, err = store.UpsertReaction(ctx, engagement.View{StoryID: st.ID, ViewerID: "viewer-1", ViewedAt: now, Reaction: &replacement, ReactedAt: &now})
	if err != nil {
		t.Fatalf("replace reaction: %v", err)
	}
	if !outcome.HadReaction {
		t.Fatal("expected replacement to report a prior reaction")
	}

	got, err := store.GetStory(ctx, st.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.UniqueViewCount != 1 || got.ReactionCount != 1 {
		t.Fatalf("unexpected counters: unique=%d reactions=%d", got.UniqueViewCount, got.ReactionCount)
	}

	dateKey := quota.DateKey(now)
	for i := 0; i < 2; i++ {
		ok, _, err := store.IncrementWithinAllowance(ctx, "author-1", dateKey, 2)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("increment %d denied under allowance", i)
		}
	}
	ok, used, err := store.IncrementWithinAllowance(ctx, "author-1", dateKey, 2)
	if err != nil {
		t.Fatalf("increment past allowance: %v", err)
	}
	if ok || used != 2 {
		t.Fatalf("expected denial at allowance, got ok=%v used=%d", ok, used)
	}

	if _, err := store.AddCredits(ctx, "author-1", 3, quota.ReasonTopUp); err != nil {
		t.Fatalf("add credits: %v", err)
	}
	ok, balance, err := store.DebitCreditsAndIncrement(ctx, "author-1", dateKey, 1, quota.ReasonStoryOverage)
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if !ok || balance != 2 {
		t.Fatalf("expected debit to leave balance 2, got ok=%v balance=%d", ok, balance)
	}
	ok, balance, err = store.DebitCreditsAndIncrement(ctx, "author-1", dateKey, 5, quota.ReasonStoryOverage)
	if err != nil {
		t.Fatalf("over-debit: %v", err)
	}
	if ok || balance != 2 {
		t.Fatalf("expected over-debit refusal at balance 2, got ok=%v balance=%d", ok, balance)
	}

	if err := store.MarkDeleted(ctx, st.ID); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}
}
