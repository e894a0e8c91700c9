// Package schedule runs the wall-clock driven behaviours of a bot: timed
// calendar and astronomical events, and probabilistic background triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/nathan-osman/go-sunrise"
	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/program"
	"github.com/keshon/botfleet/pkg/jobmgr"
)

// NoOccurrenceRetry is how long the timed loop waits when no configured
// event has a next occurrence.
const NoOccurrenceRetry = time.Hour

// ErrNoSunEvent means the sun does not rise or set at the location that day.
var ErrNoSunEvent = errors.New("no sunrise or sunset on this date")

// Location is the fixed coordinate pair used for sun events.
type Location struct {
	Latitude  float64
	Longitude float64
}

// NextOccurrence returns the first occurrence of ev at or after now, in
// now's time zone.
func NextOccurrence(ev config.TimedEvent, now time.Time, loc *Location) (time.Time, error) {
	var at time.Time
	switch ev.Type {
	case config.TimedDaily:
		h, m := ev.Clock()
		at = time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	case config.TimedSunrise, config.TimedSunset:
		if loc == nil {
			return time.Time{}, fmt.Errorf("%s event: location not configured", ev.Type)
		}
		rise, set := sunrise.SunriseSunset(loc.Latitude, loc.Longitude, now.Year(), now.Month(), now.Day())
		sun := rise
		if ev.Type == config.TimedSunset {
			sun = set
		}
		if sun.IsZero() {
			return time.Time{}, ErrNoSunEvent
		}
		lead := time.Duration(ev.MinutesBefore * float64(time.Minute))
		at = sun.In(now.Location()).Add(-lead)
	case config.TimedCron:
		next, err := gronx.NextTickAfter(ev.Expr, now, true)
		if err != nil {
			return time.Time{}, fmt.Errorf("cron %q: %w", ev.Expr, err)
		}
		return next.In(now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("unknown timed event type %q", ev.Type)
	}

	for at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// Timed is the timed event loop of one bot.
type Timed struct {
	events     []config.TimedEvent
	loc        *Location
	dispatcher program.Dispatcher
	cooldown   time.Duration
	log        zerolog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewTimed(events []config.TimedEvent, loc *Location, d program.Dispatcher, cooldown time.Duration, log zerolog.Logger) *Timed {
	if cooldown <= 0 {
		cooldown = config.DefaultTimedCooldown
	}
	return &Timed{
		events:     events,
		loc:        loc,
		dispatcher: d,
		cooldown:   cooldown,
		log:        log.With().Str("component", "timed").Logger(),
		Now:        time.Now,
		Sleep:      jobmgr.Sleep,
	}
}

// Nearest returns the event with the earliest next occurrence. Events whose
// occurrence cannot be computed are skipped for this cycle. Ties go to the
// first configured event.
func (t *Timed) Nearest(now time.Time) (config.TimedEvent, time.Time, bool) {
	var (
		best   config.TimedEvent
		bestAt time.Time
		found  bool
	)
	for _, ev := range t.events {
		at, err := NextOccurrence(ev, now, t.loc)
		if err != nil {
			t.log.Warn().Err(err).Str("type", string(ev.Type)).Str("program", ev.Program).Msg("timed event skipped this cycle")
			continue
		}
		if !found || at.Before(bestAt) {
			best, bestAt, found = ev, at, true
		}
	}
	return best, bestAt, found
}

// Run loops until ctx is done: recompute every occurrence, sleep until the
// nearest, dispatch it, cool down.
func (t *Timed) Run(ctx context.Context) error {
	if len(t.events) == 0 {
		return nil
	}
	for {
		now := t.Now()
		ev, at, ok := t.Nearest(now)
		if !ok {
			if err := t.Sleep(ctx, NoOccurrenceRetry); err != nil {
				return nil
			}
			continue
		}

		t.log.Info().Str("program", ev.Program).Time("at", at).Dur("in", at.Sub(now)).Msg("next timed event")
		if err := t.Sleep(ctx, at.Sub(now)); err != nil {
			return nil
		}

		err := t.dispatcher.Dispatch(ctx, program.Invocation{
			Program:   ev.Program,
			ChannelID: ev.Channel,
			Index:     ev.ProgramIndex,
			Trigger:   program.TriggerTimed,
		})
		if err != nil {
			t.log.Warn().Err(err).Str("program", ev.Program).Msg("timed event failed")
		}

		if err := t.Sleep(ctx, t.cooldown); err != nil {
			return nil
		}
	}
}
