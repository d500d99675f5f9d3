// Package poll runs the background polling loop for Jinkies.
//
// A single goroutine iterates the enabled feeds at a fixed interval,
// fetches each one, filters entries through the dedup ledger, and
// reports results through a Sink. The loop is pausable and stops with
// small bounded latency from any state.
package poll

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/abelbrown/jinkies/internal/fetch"
	"github.com/abelbrown/jinkies/internal/model"
	"github.com/abelbrown/jinkies/internal/seen"
)

// State is the scheduler lifecycle state.
type State int

const (
	// Idle means Start has not been called.
	Idle State = iota
	// Waiting means the scheduler is sleeping between cycles.
	Waiting
	// Polling means a cycle is iterating feeds.
	Polling
	// Paused means the pause gate is closed.
	Paused
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Polling:
		return "polling"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Fetcher retrieves and parses a single feed. *fetch.Fetcher satisfies
// it; tests inject stubs.
type Fetcher interface {
	Fetch(ctx context.Context, feed model.Feed) (*fetch.Document, error)
}

// Sink receives scheduler events. Methods are called synchronously
// from the scheduler goroutine, in feed-list order within a cycle:
// per-feed NewEntries or FeedError, then one PollComplete per cycle.
type Sink interface {
	NewEntries(feedURL string, entries []model.FeedEntry)
	FeedError(feedURL string, message string)
	PollComplete()
}

// Scheduler polls feeds on an interval until stopped.
type Scheduler struct {
	fetcher Fetcher
	sink    Sink
	seen    *seen.Set

	mu       sync.Mutex
	feeds    []model.Feed
	interval time.Duration
	state    State

	gate   *pauseGate
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler. The seen set is owned by the
// caller and passed in explicitly; the scheduler is its only mutator
// while running.
func NewScheduler(fetcher Fetcher, sink Sink, ledger *seen.Set, feeds []model.Feed, interval time.Duration) *Scheduler {
	feedsCopy := make([]model.Feed, len(feeds))
	copy(feedsCopy, feeds)
	return &Scheduler{
		fetcher:  fetcher,
		sink:     sink,
		seen:     ledger,
		feeds:    feedsCopy,
		interval: interval,
		state:    Idle,
		gate:     newPauseGate(),
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start launches the polling goroutine. The first cycle runs
// immediately; later cycles run at the configured interval. Start is
// a no-op if the scheduler already started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = Waiting
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop transitions to Stopped from any state and waits for the
// goroutine to exit. Shutdown latency is bounded: the pause gate, the
// between-cycle sleep, and in-flight fetches all observe cancellation.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.setState(Stopped)
}

// Pause closes the gate. A fetch already in flight is not aborted, but
// no further feed in the current cycle and no subsequent cycle starts
// until Resume.
func (s *Scheduler) Pause() {
	s.gate.pause()
}

// Resume reopens the gate.
func (s *Scheduler) Resume() {
	s.gate.resume()
}

// IsPaused reports whether the gate is closed.
func (s *Scheduler) IsPaused() bool {
	return s.gate.isPaused()
}

// UpdateFeeds replaces the feed list. The change applies at the next
// cycle; an in-progress cycle keeps its snapshot.
func (s *Scheduler) UpdateFeeds(feeds []model.Feed) {
	feedsCopy := make([]model.Feed, len(feeds))
	copy(feedsCopy, feeds)
	s.mu.Lock()
	s.feeds = feedsCopy
	s.mu.Unlock()
}

// UpdateInterval changes the time between cycles, effective at the
// next sleep.
func (s *Scheduler) UpdateInterval(interval time.Duration) {
	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()
}

// Feeds returns a snapshot of the feed list, including lastPollTime
// values recorded by completed polls.
func (s *Scheduler) Feeds() []model.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Feed, len(s.feeds))
	copy(out, s.feeds)
	return out
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		if !s.waitAtGate(ctx, Waiting) {
			return
		}
		s.RunCycle(ctx)
		if ctx.Err() != nil {
			return
		}
		s.setState(Waiting)
		if !s.sleep(ctx) {
			return
		}
	}
}

// RunCycle performs one full pass over the feed list: every enabled
// feed is attempted, one feed's failure never aborts the cycle, and
// PollComplete fires regardless of how many feeds errored. Exposed for
// single-shot mode and tests.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.setState(Polling)
	feeds := s.Feeds()
	for i, feed := range feeds {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !s.waitAtGate(ctx, Polling) {
			return
		}
		if !feed.Enabled {
			continue
		}
		s.pollFeed(ctx, feed)
	}
	s.sink.PollComplete()
}

// pollFeed fetches one feed and reports new entries or an error.
func (s *Scheduler) pollFeed(ctx context.Context, feed model.Feed) {
	doc, err := s.fetcher.Fetch(ctx, feed)
	if err != nil {
		log.WithField("feed", feed.URL).WithError(err).Warn("feed poll failed")
		s.sink.FeedError(feed.URL, err.Error())
		return
	}

	var fresh []model.FeedEntry
	for _, entry := range doc.Entries {
		id := entry.ID
		if id == "" {
			id = entry.Link
		}
		if id == "" {
			// Unidentifiable entry, silently dropped.
			continue
		}
		if !s.seen.IsNew(id) {
			continue
		}
		s.seen.MarkSeen(id)

		title := entry.Title
		if title == "" {
			title = "Untitled"
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		fresh = append(fresh, model.FeedEntry{
			FeedURL:   feed.URL,
			Title:     title,
			Link:      entry.Link,
			Published: published,
			ID:        id,
		})
	}

	s.recordPollTime(feed.URL, time.Now().UTC().Format(time.RFC3339))

	if len(fresh) > 0 {
		log.WithField("feed", feed.URL).WithField("count", len(fresh)).Info("new entries")
		s.sink.NewEntries(feed.URL, fresh)
	}
}

func (s *Scheduler) recordPollTime(feedURL, stamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feeds {
		if s.feeds[i].URL == feedURL {
			s.feeds[i].LastPollTime = stamp
		}
	}
}

// waitAtGate blocks while paused, restoring the given state once the
// gate opens. Returns false if the context was cancelled.
func (s *Scheduler) waitAtGate(ctx context.Context, resumeTo State) bool {
	if s.gate.isPaused() {
		s.setState(Paused)
	}
	if !s.gate.wait(ctx) {
		return false
	}
	s.setState(resumeTo)
	return true
}

// sleep waits out the configured interval between cycles. The select
// observes cancellation immediately, so shutdown never waits for the
// interval to elapse. Returns false if the context was cancelled.
func (s *Scheduler) sleep(ctx context.Context) bool {
	s.mu.Lock()
	interval := s.interval
	s.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// pauseGate is a reopenable gate: wait blocks while paused, with
// cancellation. resumed is replaced on pause and closed on resume.
type pauseGate struct {
	mu      sync.Mutex
	resumed chan struct{}
	paused  bool
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{resumed: ch}
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resumed = make(chan struct{})
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resumed)
	}
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *pauseGate) wait(ctx context.Context) bool {
	g.mu.Lock()
	ch := g.resumed
	g.mu.Unlock()
	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return true
	}
}
