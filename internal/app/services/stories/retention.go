package stories

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strata-social/story_layer/internal/app/metrics"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/app/system"
	"github.com/strata-social/story_layer/internal/logging"
)

// RetentionJob deletes expired and deleted stories whose retention window
// has passed. Engagement rows go with them through the schema's cascade.
type RetentionJob struct {
	store    storage.StoryStore
	schedule string
	window   time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*RetentionJob)(nil)

func NewRetentionJob(store storage.StoryStore, schedule string, window time.Duration, log *logging.Logger) *RetentionJob {
	if log == nil {
		log = logging.NewDefault("story-retention")
	}
	if schedule == "" {
		schedule = "0 4 * * *"
	}
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	return &RetentionJob{store: store, schedule: schedule, window: window, log: log}
}

func (j *RetentionJob) Name() string { return "story-retention" }

func (j *RetentionJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.run(ctx) }); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.running = true

	j.log.WithField("schedule", j.schedule).Info("story retention job scheduled")
	return nil
}

func (j *RetentionJob) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	c := j.cron
	j.cron = nil
	j.running = false
	j.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// RunOnce performs one purge pass immediately.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-j.window)
	return j.store.PurgeBefore(ctx, cutoff)
}

func (j *RetentionJob) run(ctx context.Context) {
	purged, err := j.RunOnce(ctx)
	if err != nil {
		j.log.WithError(err).Warn("retention purge failed")
		return
	}
	if purged > 0 {
		metrics.RecordPurged(purged)
		j.log.WithField("count", purged).Info("stories purged by retention")
	}
}
