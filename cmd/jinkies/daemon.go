package main

import (
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/abelbrown/jinkies/internal/archive"
	"github.com/abelbrown/jinkies/internal/config"
	"github.com/abelbrown/jinkies/internal/fetch"
	"github.com/abelbrown/jinkies/internal/logging"
	"github.com/abelbrown/jinkies/internal/model"
	"github.com/abelbrown/jinkies/internal/poll"
	"github.com/abelbrown/jinkies/internal/seen"
	"github.com/abelbrown/jinkies/internal/vault"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "poll feeds until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "run a single poll cycle and exit",
			},
			&cli.IntFlag{
				Name:  "interval",
				Usage: "override the poll interval in seconds",
			},
		},
		Action: runDaemon,
	}
}

func runDaemon(ctx *cli.Context) error {
	dir, err := configDir(ctx)
	if err != nil {
		return err
	}
	if err := logging.Setup(ctx.String("log-level"), dir); err != nil {
		return err
	}
	defer logging.Close()

	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return err
	}
	st, err := config.LoadState(dir)
	if err != nil {
		return err
	}

	interval := cfg.PollIntervalSecs
	if ctx.Int("interval") > 0 {
		interval = ctx.Int("interval")
	}

	arch, err := archive.Open(filepath.Join(dir, "entries.db"))
	if err != nil {
		return err
	}
	defer arch.Close()

	ledger := seen.NewSet(st.SeenIDs)
	fetcher := fetch.NewFetcher(vault.New(vault.NewKeyringStore()), fetch.DefaultTimeout)

	sink := &persistingSink{dir: dir, cfg: cfg, state: st, ledger: ledger, arch: arch}
	sched := poll.NewScheduler(fetcher, sink, ledger, cfg.Feeds, time.Duration(interval)*time.Second)
	sink.feeds = sched.Feeds

	log.WithField("feeds", len(cfg.Feeds)).
		WithField("interval_secs", interval).
		Info("starting poller")

	if ctx.Bool("once") {
		sched.RunCycle(ctx.Context)
		return nil
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start()
	<-sigCtx.Done()
	log.Info("shutting down")
	sched.Stop()
	return nil
}

// persistingSink receives scheduler events and persists their
// consequences: new entries go to the archive, and after each cycle
// the seen ledger and per-feed poll times are flushed to disk.
type persistingSink struct {
	dir    string
	cfg    *model.AppConfig
	state  *model.State
	ledger *seen.Set
	arch   *archive.Store
	feeds  func() []model.Feed

	mu sync.Mutex
}

func (s *persistingSink) NewEntries(feedURL string, entries []model.FeedEntry) {
	for _, e := range entries {
		log.WithField("feed", feedURL).
			WithField("title", e.Title).
			WithField("published", e.Published).
			Info("new entry")
	}
	if _, err := s.arch.SaveEntries(entries); err != nil {
		log.WithError(err).Warn("failed to archive entries")
	}
}

func (s *persistingSink) FeedError(feedURL string, message string) {
	log.WithField("feed", feedURL).WithField("error", message).Warn("feed error")
}

func (s *persistingSink) PollComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.SeenIDs = s.ledger.Snapshot()
	if err := config.SaveState(s.dir, s.state); err != nil {
		log.WithError(err).Error("failed to persist state")
	}

	if s.feeds != nil {
		s.cfg.Feeds = s.feeds()
		if err := config.SaveConfig(s.dir, s.cfg); err != nil {
			log.WithError(err).Error("failed to persist config")
		}
	}
}
