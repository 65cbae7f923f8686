package player

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var ErrDriverStopped = errors.New("player driver stopped")

// Driver ticks a player on its own goroutine and runs commands from other
// goroutines between ticks, so the player is only ever touched by one
// goroutine.
type Driver struct {
	player   *Player
	commands chan func(*Player)
	done     chan struct{}
	logger   zerolog.Logger
}

func NewDriver(p *Player, logger zerolog.Logger) *Driver {
	return &Driver{
		player:   p,
		commands: make(chan func(*Player)),
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "driver").Logger(),
	}
}

// Run ticks every interval until ctx is done.
func (d *Driver) Run(ctx context.Context, interval time.Duration) error {
	defer close(d.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", interval).Msg("driver started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("driver stopped")
			return ctx.Err()
		case <-ticker.C:
			d.player.Tick()
		case fn := <-d.commands:
			fn(d.player)
		}
	}
}

// Do runs fn on the tick goroutine and waits for it to finish.
func (d *Driver) Do(ctx context.Context, fn func(*Player)) error {
	finished := make(chan struct{})
	select {
	case d.commands <- func(p *Player) {
		defer close(finished)
		fn(p)
	}:
	case <-d.done:
		return ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Player returns the driven player. Only its observables are safe to read
// from other goroutines.
func (d *Driver) Player() *Player {
	return d.player
}
