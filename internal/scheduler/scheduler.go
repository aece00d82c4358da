package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/board"
	"github.com/i474232898/tripcast/internal/weather"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = 15 * time.Minute

// Boards is the registry the scheduler maintains.
type Boards interface {
	All() []*board.Board
	Prune() int
}

// Scheduler periodically refreshes the forecasts of every live board and
// prunes idle ones.
type Scheduler struct {
	scheduler *gocron.Scheduler
	boards    Boards
	interval  time.Duration
	timeout   time.Duration
}

// New creates a new Scheduler.
func New(boards Boards, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		boards:    boards,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Info().Dur("interval", s.interval).Msg("scheduler started")
	return nil
}

// RunOnce refreshes every board concurrently, then prunes idle boards.
func (s *Scheduler) RunOnce() {
	boards := s.boards.All()
	log.Debug().Int("boards", len(boards)).Msg("scheduler: running refresh job")

	var wg sync.WaitGroup
	for _, b := range boards {
		b := b
		if b.Len() == 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			n, err := b.Refresh(ctx)
			switch {
			case errors.Is(err, weather.ErrNoForecasts):
				log.Warn().Str("board", b.ID()).Msg("scheduler: refresh resolved no forecasts")
			case err != nil:
				log.Error().Err(err).Str("board", b.ID()).Msg("scheduler: refresh failed")
			default:
				log.Debug().Str("board", b.ID()).Int("refreshed", n).Msg("scheduler: board refreshed")
			}
		}()
	}
	wg.Wait()

	if pruned := s.boards.Prune(); pruned > 0 {
		log.Info().Int("pruned", pruned).Msg("scheduler: pruned idle boards")
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
