package schedule

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/program"
	"github.com/keshon/botfleet/pkg/jobmgr"
)

// PerTickProbability converts the probability p of at least one trigger
// within m ticks into the probability of a trigger on a single tick.
func PerTickProbability(p float64, m int) float64 {
	if m <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	return 1 - math.Pow(1-p, 1/float64(m))
}

// Background is the background trigger loop of one bot.
type Background struct {
	cfg        *config.Background
	q          float64
	tick       time.Duration
	dispatcher program.Dispatcher
	log        zerolog.Logger

	Float func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

// TicksPerWindow is the number of whole ticks in window, at least one.
func TicksPerWindow(window, tick time.Duration) int {
	if tick <= 0 || window <= tick {
		return 1
	}
	return int(window / tick)
}

// NewBackground prepares the loop. Ticks are one minute apart unless tick
// overrides it; the per-tick probability is calibrated to the number of
// ticks in the every_num_minutes window.
func NewBackground(cfg *config.Background, tick time.Duration, d program.Dispatcher, log zerolog.Logger) *Background {
	if tick <= 0 {
		tick = config.DefaultTickInterval
	}
	b := &Background{
		cfg:        cfg,
		tick:       tick,
		dispatcher: d,
		log:        log.With().Str("component", "background").Logger(),
		Float:      rand.Float64,
		Sleep:      jobmgr.Sleep,
	}
	if cfg != nil {
		b.q = PerTickProbability(cfg.ProbabilityTrigger, TicksPerWindow(cfg.Window(), tick))
	}
	return b
}

// Probability returns the per-tick trigger probability.
func (b *Background) Probability() float64 { return b.q }

// Run draws once per tick until ctx is done.
func (b *Background) Run(ctx context.Context) error {
	if b.cfg == nil || b.q <= 0 {
		return nil
	}
	b.log.Info().Float64("per_tick", b.q).Dur("tick", b.tick).Msg("background trigger armed")
	for {
		if b.Float() < b.q {
			err := b.dispatcher.Dispatch(ctx, program.Invocation{
				Program:   b.cfg.Program,
				ChannelID: b.cfg.Channel,
				Index:     b.cfg.ProgramIndex,
				Trigger:   program.TriggerBackground,
			})
			if err != nil {
				b.log.Warn().Err(err).Str("program", b.cfg.Program).Msg("background trigger failed")
			}
		}
		if err := b.Sleep(ctx, b.tick); err != nil {
			return nil
		}
	}
}
