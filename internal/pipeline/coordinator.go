package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"afin/internal/domain"
	"afin/internal/notify"
	"afin/internal/staging"
)

// DefaultDebounceWindow is how long the coordinator waits after the last
// upload before starting a run. Users tend to send statements in bursts.
const DefaultDebounceWindow = 5 * time.Second

// sessionState tracks where a user's upload session is.
type sessionState int

const (
	stateIdle sessionState = iota
	stateCollecting
	stateProcessing
)

type session struct {
	state      sessionState
	uploads    []domain.Upload
	generation uint64
}

// Coordinator debounces per-user uploads into batched pipeline runs. Every
// Submit restarts the user's window; only the timer armed by the latest
// submission fires a run. Uploads arriving while a run is in flight collect
// into the next batch, which is scheduled when the run finishes.
type Coordinator struct {
	runner   *Runner
	staging  staging.Store
	notifier notify.Notifier
	window   time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session

	// afterFunc is swappable for tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

// NewCoordinator creates an upload coordinator.
func NewCoordinator(runner *Runner, store staging.Store, notifier notify.Notifier, window time.Duration, log zerolog.Logger) *Coordinator {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Coordinator{
		runner:    runner,
		staging:   store,
		notifier:  notifier,
		window:    window,
		log:       log,
		sessions:  make(map[string]*session),
		afterFunc: time.AfterFunc,
	}
}

// Submit queues one upload for the user and (re)starts the debounce window.
// It returns immediately; the run happens on a background goroutine once the
// window elapses with no further submissions.
func (c *Coordinator) Submit(userID string, upload domain.Upload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[userID]
	if s == nil {
		s = &session{}
		c.sessions[userID] = s
	}

	s.uploads = append(s.uploads, upload)
	s.generation++
	if s.state == stateIdle {
		s.state = stateCollecting
	}

	gen := s.generation
	c.afterFunc(c.window, func() { c.fire(userID, gen) })

	c.log.Debug().
		Str("user_id", userID).
		Str("file", upload.Filename).
		Int("queued", len(s.uploads)).
		Msg("Upload queued")
}

// fire runs the batch for userID if gen is still the latest generation. A
// superseded timer is a no-op: a newer submission restarted the window.
func (c *Coordinator) fire(userID string, gen uint64) {
	c.mu.Lock()
	s := c.sessions[userID]
	if s == nil || s.generation != gen || len(s.uploads) == 0 {
		c.mu.Unlock()
		return
	}
	if s.state == stateProcessing {
		// A run is already in flight; it re-arms for us when it finishes.
		c.mu.Unlock()
		return
	}

	uploads := s.uploads
	s.uploads = nil
	s.state = stateProcessing
	c.mu.Unlock()

	c.runBatch(userID, uploads)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(s.uploads) > 0 {
		// Uploads arrived mid-run: schedule the next batch.
		s.state = stateCollecting
		s.generation++
		next := s.generation
		c.afterFunc(c.window, func() { c.fire(userID, next) })
	} else {
		s.state = stateIdle
	}
}

func (c *Coordinator) runBatch(userID string, uploads []domain.Upload) {
	ctx := context.Background()

	report, err := c.runner.Run(ctx, userID, uploads)
	if err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("Pipeline run failed")
	}

	pending, err := c.staging.Read(ctx, userID)
	if err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("Could not count pending rows")
	}

	summary := domain.Summary{
		UserID:           userID,
		FilesProcessed:   report.FilesProcessed,
		RowsExtracted:    report.RowsExtracted,
		RowsPendingTotal: len(pending),
		ChunksTotal:      report.ChunksTotal,
		ChunksFailed:     report.ChunksFailed,
		AccountHints:     report.AccountHints,
	}
	if err := c.notifier.Publish(ctx, summary); err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("Could not publish summary")
	}
}

// PendingUploads reports how many uploads are queued but not yet processed
// for the user. Used by status endpoints and tests.
func (c *Coordinator) PendingUploads(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.sessions[userID]; s != nil {
		return len(s.uploads)
	}
	return 0
}
