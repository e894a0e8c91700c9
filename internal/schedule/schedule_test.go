package schedule

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/program"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var stockholm = &Location{Latitude: 59.3293, Longitude: 18.0686}

// cest is a fixed zone so tests do not depend on the host's tz database.
var cest = time.FixedZone("CEST", 2*60*60)

func timedEvents(t *testing.T, doc string) []config.TimedEvent {
	t.Helper()
	b, err := config.ParseBot([]byte(`
token_env: X
programs: {p: {kind: prompt_completion, prompts: [x]}, q: {kind: prompt_completion, prompts: [y]}}
behaviors:
  timed:
`+doc), "test")
	require.NoError(t, err)
	return b.Behaviors.Timed
}

type recordingDispatcher struct {
	mu   sync.Mutex
	invs []program.Invocation
}

func (d *recordingDispatcher) Dispatch(_ context.Context, inv program.Invocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invs = append(d.invs, inv)
	return nil
}

func TestDailyOccurrence(t *testing.T) {
	ev := timedEvents(t, `    - {type: daily, time: "09:00", program: p, channel: c}`)[0]

	before := time.Date(2026, 6, 21, 8, 15, 30, 0, cest)
	at, err := NextOccurrence(ev, before, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 21, 9, 0, 0, 0, cest), at)

	after := time.Date(2026, 6, 21, 9, 0, 1, 0, cest)
	at, err = NextOccurrence(ev, after, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 22, 9, 0, 0, 0, cest), at)
}

func TestNearestDailyVersusSunrise(t *testing.T) {
	events := timedEvents(t, `
    - {type: daily, time: "09:00", program: p, channel: c}
    - {type: sunrise, minutes_before: 30, program: q, channel: c}`)
	tm := NewTimed(events, stockholm, &recordingDispatcher{}, 0, zerolog.Nop())

	rise, _ := sunrise.SunriseSunset(stockholm.Latitude, stockholm.Longitude, 2026, time.June, 21)
	require.False(t, rise.IsZero())
	sunriseLead := rise.In(cest).Add(-30 * time.Minute)

	// early morning, before the sunrise lead: sunrise wins today
	now := sunriseLead.Add(-time.Hour)
	ev, at, ok := tm.Nearest(now)
	require.True(t, ok)
	assert.Equal(t, "q", ev.Program)
	assert.True(t, at.Equal(sunriseLead))

	// mid morning: today's sunrise has passed and rolls forward exactly one
	// day, so the 09:00 event is nearer
	now = time.Date(2026, 6, 21, 7, 0, 0, 0, cest)
	ev, at, ok = tm.Nearest(now)
	require.True(t, ok)
	assert.Equal(t, "p", ev.Program)
	assert.Equal(t, time.Date(2026, 6, 21, 9, 0, 0, 0, cest), at)

	// late morning: both roll over, tomorrow's sunrise comes first
	now = time.Date(2026, 6, 21, 10, 0, 0, 0, cest)
	ev, at, ok = tm.Nearest(now)
	require.True(t, ok)
	assert.Equal(t, "q", ev.Program)
	assert.True(t, at.Equal(sunriseLead.AddDate(0, 0, 1)))
}

func TestSunEventFailures(t *testing.T) {
	ev := timedEvents(t, `    - {type: sunset, program: p, channel: c}`)[0]

	_, err := NextOccurrence(ev, time.Now(), nil)
	assert.Error(t, err)

	// polar night: no sunrise or sunset in Longyearbyen in December
	svalbard := &Location{Latitude: 78.2232, Longitude: 15.6267}
	_, err = NextOccurrence(ev, time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC), svalbard)
	assert.ErrorIs(t, err, ErrNoSunEvent)

	tm := NewTimed([]config.TimedEvent{ev}, svalbard, &recordingDispatcher{}, 0, zerolog.Nop())
	_, _, ok := tm.Nearest(time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestCronOccurrence(t *testing.T) {
	ev := timedEvents(t, `    - {type: cron, expr: "0 18 * * 5", program: p, channel: c}`)[0]

	wed := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	at, err := NextOccurrence(ev, wed, nil)
	require.NoError(t, err)
	assert.True(t, at.Equal(time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)), "got %v", at)
}

// virtualClock advances on every Sleep and cancels the run after limit sleeps.
type virtualClock struct {
	now    time.Time
	sleeps []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if len(c.sleeps) == c.limit {
		c.cancel()
		return ctx.Err()
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func TestTimedRunLoop(t *testing.T) {
	events := timedEvents(t, `
    - {type: daily, time: "09:00", program: p, program_index: 2, channel: morning}
    - {type: daily, time: "21:30", program: q, channel: evening}`)
	d := &recordingDispatcher{}
	tm := NewTimed(events, nil, d, 90*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &virtualClock{now: time.Date(2026, 6, 21, 8, 0, 0, 0, cest), limit: 6, cancel: cancel}
	tm.Now = clock.Now
	tm.Sleep = clock.Sleep

	require.NoError(t, tm.Run(ctx))

	require.Len(t, d.invs, 3)
	assert.Equal(t, program.Invocation{Program: "p", ChannelID: "morning", Index: 2, Trigger: program.TriggerTimed}, d.invs[0])
	assert.Equal(t, "q", d.invs[1].Program)
	assert.Equal(t, "p", d.invs[2].Program)
	assert.Equal(t, []time.Duration{
		time.Hour, 90 * time.Second,
		12*time.Hour + 30*time.Minute - 90*time.Second, 90 * time.Second,
		11*time.Hour + 30*time.Minute - 90*time.Second, 90 * time.Second,
	}, clock.sleeps)
}

func TestTimedRunWithoutEvents(t *testing.T) {
	tm := NewTimed(nil, nil, &recordingDispatcher{}, 0, zerolog.Nop())
	assert.NoError(t, tm.Run(context.Background()))
}

func TestTimedRunRetriesWhenNothingOccurs(t *testing.T) {
	ev := timedEvents(t, `    - {type: sunrise, program: p, channel: c}`)[0]
	svalbard := &Location{Latitude: 78.2232, Longitude: 15.6267}
	tm := NewTimed([]config.TimedEvent{ev}, svalbard, &recordingDispatcher{}, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &virtualClock{now: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), limit: 2, cancel: cancel}
	tm.Now = clock.Now
	tm.Sleep = clock.Sleep

	require.NoError(t, tm.Run(ctx))
	assert.Equal(t, []time.Duration{NoOccurrenceRetry, NoOccurrenceRetry}, clock.sleeps)
}

func TestPerTickProbability(t *testing.T) {
	assert.Equal(t, 0.0, PerTickProbability(0.5, 0))
	assert.Equal(t, 0.0, PerTickProbability(0, 10))
	assert.Equal(t, 1.0, PerTickProbability(1, 10))
	assert.InDelta(t, 0.5, PerTickProbability(0.5, 1), 1e-12)
	assert.InDelta(t, 1-0.5, 1-PerTickProbability(0.75, 2), 1e-12)
}

func TestBackgroundCalibration(t *testing.T) {
	cases := []struct {
		p float64
		m int
	}{
		{0.5, 60},
		{0.25, 240},
		{0.9, 10},
	}
	rng := rand.New(rand.NewPCG(1, 2))
	const trials = 20000
	for _, tc := range cases {
		q := PerTickProbability(tc.p, tc.m)
		hits := 0
		for i := 0; i < trials; i++ {
			for tick := 0; tick < tc.m; tick++ {
				if rng.Float64() < q {
					hits++
					break
				}
			}
		}
		assert.InDelta(t, tc.p, float64(hits)/trials, 0.02, "p=%v m=%d", tc.p, tc.m)
	}
}

func TestTicksPerWindow(t *testing.T) {
	assert.Equal(t, 60, TicksPerWindow(time.Hour, time.Minute))
	assert.Equal(t, 20, TicksPerWindow(10*time.Minute, 30*time.Second))
	assert.Equal(t, 5, TicksPerWindow(10*time.Minute, 2*time.Minute))
	assert.Equal(t, 1, TicksPerWindow(time.Minute, 5*time.Minute))
	assert.Equal(t, 1, TicksPerWindow(time.Minute, 0))
}

func TestBackgroundCalibrationWithShortTick(t *testing.T) {
	cfg := &config.Background{ProbabilityTrigger: 0.5, EveryNumMinutes: 10, Program: "p", Channel: "c"}
	tick := 30 * time.Second
	b := NewBackground(cfg, tick, &recordingDispatcher{}, zerolog.Nop())
	assert.InDelta(t, PerTickProbability(0.5, 20), b.Probability(), 1e-12)

	// simulate 10-minute windows at the configured tick length
	ticks := int(cfg.Window() / tick)
	rng := rand.New(rand.NewPCG(3, 4))
	const trials = 40000
	hits := 0
	for i := 0; i < trials; i++ {
		for k := 0; k < ticks; k++ {
			if rng.Float64() < b.Probability() {
				hits++
				break
			}
		}
	}
	assert.InDelta(t, 0.5, float64(hits)/trials, 0.02)
}

func TestBackgroundRun(t *testing.T) {
	cfg := &config.Background{ProbabilityTrigger: 0.5, EveryNumMinutes: 30, Program: "p", Channel: "c", ProgramIndex: 1}
	d := &recordingDispatcher{}
	b := NewBackground(cfg, 0, d, zerolog.Nop())
	assert.InDelta(t, PerTickProbability(0.5, 30), b.Probability(), 1e-12)

	draws := []float64{0, 0.99, 0}
	i := 0
	b.Float = func() float64 {
		v := draws[i%len(draws)]
		i++
		return v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &virtualClock{limit: 3, cancel: cancel}
	b.Sleep = clock.Sleep

	require.NoError(t, b.Run(ctx))
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute}, clock.sleeps)
	require.Len(t, d.invs, 3)
	assert.Equal(t, program.Invocation{Program: "p", ChannelID: "c", Index: 1, Trigger: program.TriggerBackground}, d.invs[0])
}

func TestBackgroundDisabled(t *testing.T) {
	assert.NoError(t, NewBackground(nil, 0, &recordingDispatcher{}, zerolog.Nop()).Run(context.Background()))
}
