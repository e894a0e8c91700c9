package program

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/storage"
)

// HistoryStore receives an audit record of every dispatch.
type HistoryStore interface {
	RecordDispatch(bot string, rec storage.DispatchRecord) error
}

// Runner dispatches the programs of one bot.
type Runner struct {
	bot      string
	programs map[string]Program
	env      Env
	store    HistoryStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewRunner builds every program of the bot. store may be nil.
func NewRunner(bot *config.Bot, env Env, store HistoryStore, log zerolog.Logger) (*Runner, error) {
	programs := make(map[string]Program, len(bot.Programs))
	for name, cfg := range bot.Programs {
		p, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", name, err)
		}
		programs[name] = p
	}
	if env.HistoryLimit <= 0 {
		env.HistoryLimit = bot.Tuning.HistoryLimitOrDefault()
	}
	return &Runner{
		bot:      bot.Name,
		programs: programs,
		env:      env,
		store:    store,
		log:      log.With().Str("component", "dispatch").Logger(),
		now:      time.Now,
	}, nil
}

// Dispatch runs the invocation's program and sends its result to the
// target channel. Failures are returned and recorded, never retried.
func (r *Runner) Dispatch(ctx context.Context, inv Invocation) error {
	p, ok := r.programs[inv.Program]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProgram, inv.Program)
	}

	rec := storage.DispatchRecord{
		ID:        uuid.NewString(),
		Program:   inv.Program,
		Kind:      string(p.Kind()),
		ChannelID: inv.ChannelID,
		Trigger:   string(inv.Trigger),
		Started:   r.now(),
	}
	if inv.Event != nil {
		rec.AuthorID = inv.Event.AuthorID
	}

	err := r.run(ctx, p, inv)

	rec.Finished = r.now()
	rec.Status = storage.StatusOK
	if err != nil {
		rec.Status = storage.StatusFailed
		rec.Error = err.Error()
	}
	r.record(rec)

	logEvt := r.log.Info()
	if err != nil {
		logEvt = r.log.Warn().Err(err)
	}
	logEvt.
		Str("id", rec.ID).
		Str("program", inv.Program).
		Str("channel", inv.ChannelID).
		Str("trigger", rec.Trigger).
		Dur("took", rec.Finished.Sub(rec.Started)).
		Msg("dispatch")
	return err
}

func (r *Runner) run(ctx context.Context, p Program, inv Invocation) error {
	res, err := p.Run(ctx, r.env, inv)
	if err != nil {
		return err
	}
	if res.empty() {
		return ErrEmptyResult
	}
	msg := platform.Message{
		Text:     Truncate(res.Text, MessageLimit),
		ImageURL: res.ImageURL,
		File:     res.File,
	}
	if err := r.env.Gateway.SendMessage(ctx, inv.ChannelID, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (r *Runner) record(rec storage.DispatchRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordDispatch(r.bot, rec); err != nil {
		r.log.Warn().Err(err).Msg("record dispatch failed")
	}
}

// Has reports whether the bot defines a program.
func (r *Runner) Has(name string) bool {
	_, ok := r.programs[name]
	return ok
}
