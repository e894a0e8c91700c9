package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/keshon/botfleet/internal/ai"
	"github.com/keshon/botfleet/internal/bot"
	"github.com/keshon/botfleet/internal/config"
	"github.com/keshon/botfleet/internal/discord"
	"github.com/keshon/botfleet/internal/logging"
	"github.com/keshon/botfleet/internal/schedule"
	"github.com/keshon/botfleet/internal/selector"
	"github.com/keshon/botfleet/internal/storage"
	"github.com/keshon/botfleet/internal/version"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start every configured bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFleet(cmd.Context())
		},
	}
}

// setup loads the environment and installs the global logger.
func setup() (*config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	level := env.LogLevel
	if verbose {
		level = zerolog.LevelDebugValue
	}
	logging.Setup(level, env.LogFile)
	return env, nil
}

func runFleet(parent context.Context) error {
	env, err := setup()
	if err != nil {
		return err
	}
	log.Info().Str("version", version.Version).Msgf("Starting %s...", version.AppName)

	bots, err := config.LoadBots(env)
	if err != nil {
		return err
	}
	if len(bots) == 0 {
		return fmt.Errorf("no bots configured in %s", env.ConfigDir)
	}

	store, err := storage.New(parent, env.StoragePath, log.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	backends, err := ai.NewBackends(env)
	if err != nil {
		return err
	}
	ranker := backends.Ranker()

	var loc *schedule.Location
	if env.HasLocation() {
		loc = &schedule.Location{Latitude: *env.Latitude, Longitude: *env.Longitude}
	}

	// bots naming the same catalog share one reaction cache
	type catalogEntry struct {
		catalog selector.Catalog
		cache   *selector.ReactionCache
	}
	catalogs := map[string]catalogEntry{}

	members := prepare(bots, func(cfg *config.Bot) (member, error) {
		blog := logging.ForBot(cfg.Name)

		token, err := cfg.Token()
		if err != nil {
			return member{}, err
		}

		entry, ok := catalogs[cfg.EmojiCatalog]
		if !ok {
			entry = catalogEntry{catalog: selector.DefaultCatalog(), cache: selector.NewReactionCache()}
			if cfg.EmojiCatalog != "" {
				if entry.catalog, err = selector.LoadCatalog(cfg.EmojiCatalog); err != nil {
					return member{}, err
				}
			}
			catalogs[cfg.EmojiCatalog] = entry
		}

		session, err := discord.New(token, blog)
		if err != nil {
			return member{}, err
		}
		rt := bot.New(cfg, session, bot.Deps{
			Completion:    backends.Completion,
			Images:        backends.Images,
			Ranker:        ranker,
			Music:         discord.NewMusic(session),
			Store:         store,
			ReactionCache: entry.cache,
			Catalog:       entry.catalog,
			Location:      loc,
		}, blog)
		return member{name: cfg.Name, run: rt.Run}, nil
	})
	if len(members) == 0 {
		return errors.New("no bot could be started")
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervise(ctx, members); err != nil {
		log.Error().Err(err).Msg("fleet stopped with error")
		return err
	}
	log.Info().Msg("All bots exited cleanly")
	return nil
}

// member is one bot of the fleet, ready to run.
type member struct {
	name string
	run  func(context.Context) error
}

// prepare builds a member per bot. A bot that cannot be built is logged and
// left out; the others still start.
func prepare(bots []*config.Bot, build func(*config.Bot) (member, error)) []member {
	members := make([]member, 0, len(bots))
	for _, cfg := range bots {
		m, err := build(cfg)
		if err != nil {
			log.Error().Err(err).Str("bot", cfg.Name).Msg("bot skipped")
			continue
		}
		members = append(members, m)
	}
	return members
}

// supervise runs every member until ctx is done. Members share no
// cancellation: one bot failing is logged and the rest keep running. It
// returns an error only when every member failed.
func supervise(ctx context.Context, members []member) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, m := range members {
		g.Go(func() error {
			if err := m.run(ctx); err != nil {
				log.Error().Err(err).Str("bot", m.name).Msg("bot stopped")
				mu.Lock()
				errs = append(errs, fmt.Errorf("bot %s: %w", m.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(members) > 0 && len(errs) == len(members) {
		return errors.Join(errs...)
	}
	return nil
}
