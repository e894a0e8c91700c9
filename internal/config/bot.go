package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure of a bot file.
var ErrInvalid = errors.New("invalid bot config")

// Named defaults, overridable per bot through the tuning block.
const (
	DefaultReactionThreshold  = 20.0
	DefaultReactionMaxOptions = 4
	DefaultTimedCooldown      = 90 * time.Second
	DefaultTickInterval       = 60 * time.Second
	DefaultHistoryLimit       = 50
)

// Behavior is one member of a bot's enabled behaviour set.
type Behavior string

const (
	BehaviorOnMention  Behavior = "on_mention"
	BehaviorOnMessage  Behavior = "on_message"
	BehaviorTimed      Behavior = "timed"
	BehaviorBackground Behavior = "background"
)

// Kind is the closed set of program kinds.
type Kind string

const (
	KindChatCompletion   Kind = "chat_completion"
	KindPromptCompletion Kind = "prompt_completion"
	KindImageGeneration  Kind = "image_generation"
	KindMusicStatus      Kind = "music_status"
)

// TimedType is the kind of a calendar or astronomical event.
type TimedType string

const (
	TimedDaily   TimedType = "daily"
	TimedSunrise TimedType = "sunrise"
	TimedSunset  TimedType = "sunset"
	TimedCron    TimedType = "cron"
)

// Bot is the immutable configuration of one bot.
type Bot struct {
	Name         string             `yaml:"name"`
	TokenEnv     string             `yaml:"token_env"`
	EmojiCatalog string             `yaml:"emoji_catalog"`
	Behaviors    Behaviors          `yaml:"behaviors"`
	Programs     map[string]Program `yaml:"programs"`
	Tuning       Tuning             `yaml:"tuning"`
}

type Behaviors struct {
	OnMention  *Context     `yaml:"on_mention"`
	OnMessage  *Context     `yaml:"on_message"`
	Timed      []TimedEvent `yaml:"timed"`
	Background *Background  `yaml:"background"`
}

// Context is the behaviour configuration for one event classification.
// Exactly one of Program and Options is set.
type Context struct {
	ResponseProbability float64   `yaml:"response_probability"`
	Delay               []float64 `yaml:"delay"`
	Channels            []string  `yaml:"channels"`
	ReactionProbability *float64  `yaml:"reaction_probability"`
	Program             string    `yaml:"program"`
	Options             []Option  `yaml:"options"`
}

// Option binds a descriptive document to a program for ranked selection.
type Option struct {
	Document string `yaml:"document"`
	Program  string `yaml:"program"`
}

type TimedEvent struct {
	Type          TimedType `yaml:"type"`
	Time          string    `yaml:"time"`
	MinutesBefore float64   `yaml:"minutes_before"`
	Expr          string    `yaml:"expr"`
	Program       string    `yaml:"program"`
	ProgramIndex  int       `yaml:"program_index"`
	Channel       string    `yaml:"channel"`

	hour, minute int
}

type Background struct {
	ProbabilityTrigger float64 `yaml:"probability_trigger"`
	EveryNumMinutes    int     `yaml:"every_num_minutes"`
	Program            string  `yaml:"program"`
	ProgramIndex       int     `yaml:"program_index"`
	Channel            string  `yaml:"channel"`
}

// Program is a tagged variant keyed by Kind. Fields that do not belong to
// the kind are rejected at load.
type Program struct {
	Kind          Kind     `yaml:"kind"`
	Persona       string   `yaml:"persona"`
	Prompts       []string `yaml:"prompts"`
	Model         string   `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
	HistoryLimit  int      `yaml:"history_limit"`
	AddressAuthor bool     `yaml:"address_author"`
	UseEventText  bool     `yaml:"use_event_text"`
}

type Tuning struct {
	ReactionThreshold  *float64 `yaml:"reaction_threshold"`
	ReactionMaxOptions int      `yaml:"reaction_max_options"`
	TimedCooldown      Duration `yaml:"timed_cooldown"`
	TickInterval       Duration `yaml:"tick_interval"`
	HistoryLimit       int      `yaml:"history_limit"`
}

// Duration is a time.Duration written as a Go duration string ("90s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadBot reads and validates one bot file.
func LoadBot(path string) (*Bot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot config %s: %w", path, err)
	}
	return ParseBot(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// ParseBot decodes and validates a bot file. fallbackName is used when the
// file does not set a name.
func ParseBot(data []byte, fallbackName string) (*Bot, error) {
	var b Bot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, fallbackName, err)
	}
	if b.Name == "" {
		b.Name = fallbackName
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadBots loads every bot named in env.Bots, or every *.yaml file of the
// config directory when no names are given.
func LoadBots(e *Env) ([]*Bot, error) {
	names := e.Bots
	if len(names) == 0 {
		matches, err := filepath.Glob(filepath.Join(e.ConfigDir, "*.yaml"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		for _, m := range matches {
			names = append(names, strings.TrimSuffix(filepath.Base(m), ".yaml"))
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no bots configured in %s", e.ConfigDir)
	}

	bots := make([]*Bot, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		b, err := LoadBot(filepath.Join(e.ConfigDir, name+".yaml"))
		if err != nil {
			return nil, err
		}
		if b.UsesSunEvents() && !e.HasLocation() {
			return nil, fmt.Errorf("%w: %s: sunrise/sunset events need LOCAL_LATITUDE and LOCAL_LONGITUDE", ErrInvalid, b.Name)
		}
		bots = append(bots, b)
	}
	return bots, nil
}

// Token returns the bot's auth token from the environment.
func (b *Bot) Token() (string, error) {
	tok := os.Getenv(b.TokenEnv)
	if tok == "" {
		return "", fmt.Errorf("%s is not set", b.TokenEnv)
	}
	return tok, nil
}

// Enabled reports whether a behaviour is part of the bot's behaviour set.
func (b *Bot) Enabled(beh Behavior) bool {
	switch beh {
	case BehaviorOnMention:
		return b.Behaviors.OnMention != nil
	case BehaviorOnMessage:
		return b.Behaviors.OnMessage != nil
	case BehaviorTimed:
		return len(b.Behaviors.Timed) > 0
	case BehaviorBackground:
		return b.Behaviors.Background != nil
	}
	return false
}

// UsesSunEvents reports whether any timed event depends on the location.
func (b *Bot) UsesSunEvents() bool {
	for _, t := range b.Behaviors.Timed {
		if t.Type == TimedSunrise || t.Type == TimedSunset {
			return true
		}
	}
	return false
}

// ReactionThresholdOrDefault returns the configured or default reaction score threshold.
func (t Tuning) ReactionThresholdOrDefault() float64 {
	if t.ReactionThreshold != nil {
		return *t.ReactionThreshold
	}
	return DefaultReactionThreshold
}

func (t Tuning) ReactionMaxOptionsOrDefault() int {
	if t.ReactionMaxOptions > 0 {
		return t.ReactionMaxOptions
	}
	return DefaultReactionMaxOptions
}

func (t Tuning) TimedCooldownOrDefault() time.Duration {
	if t.TimedCooldown > 0 {
		return time.Duration(t.TimedCooldown)
	}
	return DefaultTimedCooldown
}

// Window is the span every_num_minutes covers.
func (bg *Background) Window() time.Duration {
	return time.Duration(bg.EveryNumMinutes) * time.Minute
}

func (t Tuning) TickIntervalOrDefault() time.Duration {
	if t.TickInterval > 0 {
		return time.Duration(t.TickInterval)
	}
	return DefaultTickInterval
}

func (t Tuning) HistoryLimitOrDefault() int {
	if t.HistoryLimit > 0 {
		return t.HistoryLimit
	}
	return DefaultHistoryLimit
}

// DelayRange returns the configured reply delay bounds, zero when unset.
func (c *Context) DelayRange() (time.Duration, time.Duration) {
	if len(c.Delay) != 2 {
		return 0, 0
	}
	return seconds(c.Delay[0]), seconds(c.Delay[1])
}

// ChannelAllowed reports whether the allow-list admits channelID.
func (c *Context) ChannelAllowed(channelID string) bool {
	return len(c.Channels) == 0 || slices.Contains(c.Channels, channelID)
}

// Clock returns the parsed hour and minute of a daily event.
func (t TimedEvent) Clock() (int, int) {
	return t.hour, t.minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Validate checks the whole file and resolves derived fields.
func (b *Bot) Validate() error {
	v := &validator{bot: b.Name}
	if b.TokenEnv == "" {
		v.fail("token_env", "is required")
	}
	for name, p := range b.Programs {
		v.program("programs."+name, p)
	}
	if c := b.Behaviors.OnMention; c != nil {
		v.context("behaviors.on_mention", c, b.Programs)
	}
	if c := b.Behaviors.OnMessage; c != nil {
		v.context("behaviors.on_message", c, b.Programs)
	}
	for i := range b.Behaviors.Timed {
		v.timed(fmt.Sprintf("behaviors.timed[%d]", i), &b.Behaviors.Timed[i], b.Programs)
	}
	if b.Tuning.TickInterval < 0 {
		v.fail("tuning.tick_interval", "must not be negative")
	}
	if bg := b.Behaviors.Background; bg != nil {
		v.background("behaviors.background", bg, b.Programs)
		if tick := b.Tuning.TickIntervalOrDefault(); bg.EveryNumMinutes > 0 && bg.Window()%tick != 0 {
			v.fail("behaviors.background.every_num_minutes", "window of %s is not a whole number of %s ticks", bg.Window(), tick)
		}
	}
	if t := b.Tuning.ReactionThreshold; t != nil && *t < 0 {
		v.fail("tuning.reaction_threshold", "must not be negative")
	}
	if b.Tuning.ReactionMaxOptions < 0 {
		v.fail("tuning.reaction_max_options", "must not be negative")
	}
	return v.err
}

type validator struct {
	bot string
	err error
}

func (v *validator) fail(path, format string, args ...any) {
	if v.err != nil {
		return
	}
	v.err = fmt.Errorf("%w: %s: %s %s", ErrInvalid, v.bot, path, fmt.Sprintf(format, args...))
}

func (v *validator) probability(path string, p float64) {
	if p < 0 || p > 1 {
		v.fail(path, "must be within [0,1], got %v", p)
	}
}

func (v *validator) programRef(path, name string, programs map[string]Program) {
	if name == "" {
		v.fail(path, "is required")
		return
	}
	if _, ok := programs[name]; !ok {
		v.fail(path, "references unknown program %q", name)
	}
}

func (v *validator) context(path string, c *Context, programs map[string]Program) {
	v.probability(path+".response_probability", c.ResponseProbability)
	if c.ReactionProbability != nil {
		v.probability(path+".reaction_probability", *c.ReactionProbability)
	}
	switch len(c.Delay) {
	case 0:
	case 2:
		if c.Delay[0] < 0 || c.Delay[1] < c.Delay[0] {
			v.fail(path+".delay", "must be [min,max] with 0 <= min <= max")
		}
	default:
		v.fail(path+".delay", "must have exactly two values")
	}
	if c.Program != "" && len(c.Options) > 0 {
		v.fail(path, "sets both program and options")
	}
	if c.Program == "" && len(c.Options) == 0 {
		v.fail(path, "needs a program or options")
	}
	if c.Program != "" {
		v.programRef(path+".program", c.Program, programs)
	}
	for i, o := range c.Options {
		op := fmt.Sprintf("%s.options[%d]", path, i)
		if strings.TrimSpace(o.Document) == "" {
			v.fail(op+".document", "is required")
		}
		v.programRef(op+".program", o.Program, programs)
	}
}

func (v *validator) timed(path string, t *TimedEvent, programs map[string]Program) {
	v.programRef(path+".program", t.Program, programs)
	if t.Channel == "" {
		v.fail(path+".channel", "is required")
	}
	if t.ProgramIndex < 0 {
		v.fail(path+".program_index", "must not be negative")
	}
	switch t.Type {
	case TimedDaily:
		parsed, err := time.Parse("15:04", t.Time)
		if err != nil {
			v.fail(path+".time", "must be HH:MM, got %q", t.Time)
			return
		}
		t.hour, t.minute = parsed.Hour(), parsed.Minute()
	case TimedSunrise, TimedSunset:
		if t.Time != "" || t.Expr != "" {
			v.fail(path, "%s events only take minutes_before", t.Type)
		}
	case TimedCron:
		g := gronx.New()
		if !g.IsValid(t.Expr) {
			v.fail(path+".expr", "is not a valid cron expression: %q", t.Expr)
		}
	default:
		v.fail(path+".type", "must be one of daily, sunrise, sunset, cron, got %q", t.Type)
	}
}

func (v *validator) background(path string, bg *Background, programs map[string]Program) {
	if bg.ProbabilityTrigger <= 0 || bg.ProbabilityTrigger > 1 {
		v.fail(path+".probability_trigger", "must be within (0,1], got %v", bg.ProbabilityTrigger)
	}
	if bg.EveryNumMinutes <= 0 {
		v.fail(path+".every_num_minutes", "must be a positive whole number of minutes")
	}
	v.programRef(path+".program", bg.Program, programs)
	if bg.Channel == "" {
		v.fail(path+".channel", "is required")
	}
	if bg.ProgramIndex < 0 {
		v.fail(path+".program_index", "must not be negative")
	}
}

func (v *validator) program(path string, p Program) {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		v.fail(path+".temperature", "must be within [0,2]")
	}
	if p.MaxTokens < 0 {
		v.fail(path+".max_tokens", "must not be negative")
	}
	completion := p.Model != "" || p.Temperature != nil || p.MaxTokens != 0
	switch p.Kind {
	case KindChatCompletion:
		if len(p.Prompts) > 0 || p.UseEventText {
			v.fail(path, "chat_completion takes persona, history_limit, address_author and model settings only")
		}
		if p.HistoryLimit < 0 {
			v.fail(path+".history_limit", "must not be negative")
		}
	case KindPromptCompletion:
		if len(p.Prompts) == 0 {
			v.fail(path+".prompts", "needs at least one prompt")
		}
		if p.HistoryLimit != 0 || p.UseEventText {
			v.fail(path, "prompt_completion takes persona, prompts, address_author and model settings only")
		}
	case KindImageGeneration:
		if len(p.Prompts) == 0 && !p.UseEventText {
			v.fail(path+".prompts", "needs at least one prompt unless use_event_text is set")
		}
		if p.Persona != "" || p.HistoryLimit != 0 || p.AddressAuthor || p.Temperature != nil || p.MaxTokens != 0 {
			v.fail(path, "image_generation takes prompts, use_event_text and model only")
		}
	case KindMusicStatus:
		if p.Persona != "" || len(p.Prompts) > 0 || p.HistoryLimit != 0 || completion || p.UseEventText || p.AddressAuthor {
			v.fail(path, "music_status takes no settings")
		}
	default:
		v.fail(path+".kind", "unknown program kind %q", p.Kind)
	}
}
