// Package reply decides, per conversational event, whether a bot answers,
// when, and with which program.
package reply

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/program"
	"github.com/keshon/botfleet/internal/selector"
	"github.com/keshon/botfleet/pkg/jobmgr"
)

// Outcome is how the engine disposed of an event.
type Outcome int

const (
	NoContext Outcome = iota
	FromSelf
	ChannelNotAllowed
	Declined
	Busy
	Canceled
	NoProgram
	Failed
	Dispatched
)

var outcomeNames = [...]string{
	NoContext:         "no_context",
	FromSelf:          "from_self",
	ChannelNotAllowed: "channel_not_allowed",
	Declined:          "declined",
	Busy:              "busy",
	Canceled:          "canceled",
	NoProgram:         "no_program",
	Failed:            "failed",
	Dispatched:        "dispatched",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Deps are the collaborators of an Engine. Reactions may be nil.
type Deps struct {
	Programs   *selector.ProgramSelector
	Reactions  *selector.ReactionSelector
	Gateway    platform.Gateway
	Dispatcher program.Dispatcher
	Log        zerolog.Logger
}

// Engine is the reply decision state machine of one bot.
type Engine struct {
	selfID    string
	behaviors config.Behaviors
	gate      *Gate
	deps      Deps
	log       zerolog.Logger
	reactions sync.WaitGroup

	// Float draws uniformly in [0,1). Sleep pauses for the reply delay.
	Float func() float64
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(selfID string, bot *config.Bot, deps Deps) *Engine {
	return &Engine{
		selfID:    selfID,
		behaviors: bot.Behaviors,
		gate:      NewGate(),
		deps:      deps,
		log:       deps.Log.With().Str("component", "reply").Logger(),
		Float:     rand.Float64,
		Sleep:     jobmgr.Sleep,
	}
}

// Gate exposes the busy gate.
func (e *Engine) Gate() *Gate { return e.gate }

// Classify returns the behaviour context for ev and the trigger it maps to.
// The context is nil when that behaviour is disabled.
func (e *Engine) Classify(ev platform.Event) (*config.Context, program.Trigger) {
	if slices.Contains(platform.MentionedIDs(ev.Content), e.selfID) {
		return e.behaviors.OnMention, program.TriggerMention
	}
	return e.behaviors.OnMessage, program.TriggerMessage
}

// Handle runs one event through the engine. It blocks for the reply delay
// and the dispatch; callers run it on its own goroutine per event.
func (e *Engine) Handle(ctx context.Context, ev platform.Event) Outcome {
	c, trigger := e.Classify(ev)
	fromSelf := ev.AuthorID == e.selfID

	if c != nil && !fromSelf && c.ReactionProbability != nil && e.deps.Reactions != nil {
		if e.Float() < *c.ReactionProbability {
			e.reactions.Go(func() {
				e.deps.Reactions.React(ctx, e.deps.Gateway, ev)
			})
		}
	}

	out := e.decide(ctx, c, trigger, ev, fromSelf)
	e.log.Debug().
		Str("channel", ev.ChannelID).
		Str("message", ev.ID).
		Str("trigger", string(trigger)).
		Stringer("outcome", out).
		Msg("reply decision")
	return out
}

func (e *Engine) decide(ctx context.Context, c *config.Context, trigger program.Trigger, ev platform.Event, fromSelf bool) Outcome {
	switch {
	case c == nil:
		return NoContext
	case fromSelf:
		return FromSelf
	case !c.ChannelAllowed(ev.ChannelID):
		return ChannelNotAllowed
	case e.gate.Busy():
		return Busy
	case !(e.Float() < c.ResponseProbability):
		return Declined
	}

	delay := e.delay(c)
	token, ok := e.gate.TryAcquire(delay)
	if !ok {
		return Busy
	}
	defer e.gate.Release(token)

	if err := e.Sleep(ctx, delay); err != nil {
		return Canceled
	}

	name, err := e.deps.Programs.Select(ctx, c, ev.Content)
	if err != nil {
		e.log.Debug().Err(err).Str("channel", ev.ChannelID).Msg("no program selected")
		return NoProgram
	}

	err = e.deps.Dispatcher.Dispatch(ctx, program.Invocation{
		Program:   name,
		Event:     &ev,
		ChannelID: ev.ChannelID,
		Trigger:   trigger,
	})
	if err != nil {
		return Failed
	}
	return Dispatched
}

func (e *Engine) delay(c *config.Context) time.Duration {
	lo, hi := c.DelayRange()
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(e.Float()*float64(hi-lo))
}

// Wait blocks until every reaction started by Handle has finished.
func (e *Engine) Wait() {
	e.reactions.Wait()
}
