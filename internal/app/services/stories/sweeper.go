package stories

import (
	"context"
	"sync"
	"time"

	"github.com/strata-social/story_layer/internal/app/metrics"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/app/system"
	"github.com/strata-social/story_layer/internal/logging"
)

// ExpirySweeper periodically transitions overdue stories to expired. Status
// classification never depends on it; the sweep only keeps the persisted
// state and counters from drifting indefinitely.
type ExpirySweeper struct {
	store    storage.StoryStore
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*ExpirySweeper)(nil)

func NewExpirySweeper(store storage.StoryStore, interval time.Duration, log *logging.Logger) *ExpirySweeper {
	if log == nil {
		log = logging.NewDefault("story-sweeper")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{store: store, interval: interval, log: log}
}

func (s *ExpirySweeper) Name() string { return "story-sweeper" }

func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.log.Info("story expiry sweeper started")
	return nil
}

func (s *ExpirySweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (s *ExpirySweeper) tick(ctx context.Context) {
	expired, err := s.store.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("expiry sweep failed")
		return
	}
	if expired > 0 {
		metrics.RecordExpired(expired)
		s.log.WithField("count", expired).Info("stories expired by sweep")
	}
}
