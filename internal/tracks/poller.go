package tracks

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/justestif/spotify-now-playing/internal/spotify"
)

// Fetcher returns the current track. *Service implements it.
type Fetcher interface {
	FetchCurrentTrack(ctx context.Context) (*spotify.CurrentTrack, error)
}

// Result is one poll outcome. Exactly one of Track and Err is set.
type Result struct {
	Track *spotify.CurrentTrack
	Err   error
	At    time.Time
}

// Poller calls a Fetcher once immediately and then on a fixed interval.
// Polls never overlap: the next one starts no earlier than Interval after
// the previous one started, and never before it finished.
type Poller struct {
	Fetcher  Fetcher
	Interval time.Duration

	// StopOnError ends polling after the first failed fetch.
	StopOnError bool
}

// Run polls until ctx is cancelled, or until the first error when StopOnError
// is set, calling fn with every result. It returns ctx.Err() or the fetch error.
func (p *Poller) Run(ctx context.Context, fn func(Result)) error {
	if p.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}

	limiter := rate.NewLimiter(rate.Every(p.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails early when the next slot falls past the deadline.
			// Polling still stops at cancellation, not before.
			if ctx.Err() == nil {
				<-ctx.Done()
			}
			return ctx.Err()
		}

		track, err := p.Fetcher.FetchCurrentTrack(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(Result{Track: track, Err: err, At: time.Now()})

		if err != nil && p.StopOnError {
			return err
		}
	}
}
