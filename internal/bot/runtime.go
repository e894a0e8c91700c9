// Package bot owns one bot's lifecycle: it wires the pseudonym mapper, the
// reply engine, the selectors, the schedulers and program dispatch over a
// gateway connection.
package bot

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/botfleet/internal/ai"
	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/platform"
	"github.com/keshon/botfleet/internal/program"
	"github.com/keshon/botfleet/internal/pseudonym"
	"github.com/keshon/botfleet/internal/ranking"
	"github.com/keshon/botfleet/internal/reply"
	"github.com/keshon/botfleet/internal/schedule"
	"github.com/keshon/botfleet/internal/selector"
	"github.com/keshon/botfleet/pkg/jobmgr"
)

// Job names.
const (
	JobTimed      = "timed"
	JobBackground = "background"
)

// Deps are the collaborators shared by a runtime. Only Completion is
// required by programs that generate text; the rest may be nil.
type Deps struct {
	Completion    ai.Provider
	Images        ai.Imager
	Ranker        ranking.Ranker
	Music         program.MusicService
	Store         program.HistoryStore
	ReactionCache *selector.ReactionCache
	Catalog       selector.Catalog
	Location      *schedule.Location
}

// Runtime runs one bot.
type Runtime struct {
	cfg  *config.Bot
	conn platform.Connection
	deps Deps
	log  zerolog.Logger
	jobs *jobmgr.Manager

	mu      sync.Mutex
	ctx     context.Context
	selfID  string
	closing bool
	mapper  *pseudonym.Mapper
	engine  *reply.Engine
	runner  *program.Runner
	events  sync.WaitGroup
}

func New(cfg *config.Bot, conn platform.Connection, deps Deps, log zerolog.Logger) *Runtime {
	if deps.Ranker == nil {
		deps.Ranker = ranking.Unavailable{}
	}
	if deps.Catalog == nil {
		deps.Catalog = selector.DefaultCatalog()
	}
	if deps.ReactionCache == nil {
		deps.ReactionCache = selector.NewReactionCache()
	}
	r := &Runtime{
		cfg:  cfg,
		conn: conn,
		deps: deps,
		log:  log,
	}
	r.jobs = jobmgr.NewManager(func(msg string) {
		r.log.Debug().Str("job", msg).Msg("job status")
	})
	return r
}

// Run connects the bot and blocks until ctx is done, then shuts down and
// waits for in-flight work.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	for _, b := range []config.Behavior{config.BehaviorOnMention, config.BehaviorOnMessage, config.BehaviorTimed, config.BehaviorBackground} {
		if !r.cfg.Enabled(b) {
			r.log.Info().Str("behavior", string(b)).Msg("behavior disabled")
		}
	}

	if err := r.conn.Open(platform.Handlers{OnReady: r.onReady, OnMessage: r.onMessage}); err != nil {
		return err
	}
	r.log.Info().Msg("bot connected")

	<-ctx.Done()
	r.log.Info().Str("jobs", r.jobs.Status()).Msg("shutting down")

	r.mu.Lock()
	r.closing = true
	engine := r.engine
	r.mu.Unlock()

	err := r.conn.Close()
	r.jobs.StopAll()
	r.jobs.Wait()
	r.events.Wait()
	if engine != nil {
		engine.Wait()
	}
	return err
}

// Jobs lists the running scheduler loops.
func (r *Runtime) Jobs() []string {
	return r.jobs.List()
}

// Participants returns the known participants of a channel, most recent first.
func (r *Runtime) Participants(channelID string) []string {
	r.mu.Lock()
	mapper := r.mapper
	r.mu.Unlock()
	if mapper == nil {
		return nil
	}
	return mapper.Participants(channelID)
}

func (r *Runtime) onReady(selfID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mapper != nil {
		// reconnect: keep state, loops are already running
		return
	}
	r.selfID = selfID
	r.mapper = pseudonym.NewMapper(selfID)

	runner, err := program.NewRunner(r.cfg, program.Env{
		SelfID:     selfID,
		Gateway:    r.conn,
		Completion: r.deps.Completion,
		Images:     r.deps.Images,
		Music:      r.deps.Music,
		Pseudonyms: r.mapper,
	}, r.deps.Store, r.log)
	if err != nil {
		// config was validated at load; only an unknown kind gets here
		r.log.Error().Err(err).Msg("programs unavailable")
		return
	}
	r.runner = runner

	r.engine = reply.NewEngine(selfID, r.cfg, reply.Deps{
		Programs: selector.NewProgramSelector(r.deps.Ranker, r.log),
		Reactions: selector.NewReactionSelector(r.deps.Catalog, r.deps.Ranker, r.deps.ReactionCache,
			r.cfg.Tuning, r.log.With().Str("component", "reaction").Logger()),
		Gateway:    r.conn,
		Dispatcher: runner,
		Log:        r.log,
	})

	if r.closing || r.ctx == nil {
		return
	}
	if r.cfg.Enabled(config.BehaviorTimed) {
		timed := schedule.NewTimed(r.cfg.Behaviors.Timed, r.deps.Location, runner, r.cfg.Tuning.TimedCooldownOrDefault(), r.log)
		if err := r.jobs.StartAsync(r.ctx, JobTimed, timed.Run); err != nil {
			r.log.Warn().Err(err).Msg("timed loop not started")
		}
	}
	if r.cfg.Enabled(config.BehaviorBackground) {
		bg := schedule.NewBackground(r.cfg.Behaviors.Background, r.cfg.Tuning.TickIntervalOrDefault(), runner, r.log)
		if err := r.jobs.StartAsync(r.ctx, JobBackground, bg.Run); err != nil {
			r.log.Warn().Err(err).Msg("background loop not started")
		}
	}
}

func (r *Runtime) onMessage(ev platform.Event) {
	r.mu.Lock()
	if r.closing || r.engine == nil {
		r.mu.Unlock()
		return
	}
	ctx, mapper, engine := r.ctx, r.mapper, r.engine
	r.events.Add(1)
	r.mu.Unlock()
	defer r.events.Done()

	var seed []string
	if !mapper.Known(ev.ChannelID) {
		seed = r.seed(ctx, ev)
	}
	mapper.Observe(ev.ChannelID, ev.AuthorID, seed)

	engine.Handle(ctx, ev)
}

// seed lists channel members followed by recent message authors, oldest
// first. Lookup failures leave the corresponding part empty.
func (r *Runtime) seed(ctx context.Context, ev platform.Event) []string {
	members, err := r.conn.Members(ctx, ev.GuildID)
	if err != nil {
		r.log.Warn().Err(err).Str("guild", ev.GuildID).Msg("member lookup failed")
	}
	history, err := r.conn.FetchRecentHistory(ctx, ev.ChannelID, r.cfg.Tuning.HistoryLimitOrDefault())
	if err != nil {
		r.log.Warn().Err(err).Str("channel", ev.ChannelID).Msg("history lookup failed")
	}

	authors := make([]string, 0, len(history))
	for _, h := range history {
		authors = append(authors, h.AuthorID)
	}
	slices.Reverse(authors)
	return append(members, authors...)
}
