package plugins

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/bots"
)

// State is where a discovered plugin ended up during import.
type State int

const (
	StateDiscovered State = iota
	StateConfigLoaded
	StateBotResolved
	StateEnabled
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConfigLoaded:
		return "config_loaded"
	case StateBotResolved:
		return "bot_resolved"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry records the outcome for one discovered plugin.
type Entry struct {
	Path   string
	Config Config
	State  State
	Err    error
	Plugin *Plugin
}

// Importer discovers plugin packages, merges their configuration, resolves
// their bots, and constructs the enabled ones.
type Importer struct {
	root    string
	userDir string
	bots    *bots.Registry
	modules *Registry
	scope   string
	opts    []Option

	entries []*Entry
}

// NewImporter creates an importer. root holds one folder per plugin package
// with a config.yaml; userDir holds user overrides.
func NewImporter(root, userDir string, botReg *bots.Registry, modules *Registry, opts ...Option) *Importer {
	return &Importer{
		root:    root,
		userDir: userDir,
		bots:    botReg,
		modules: modules,
		opts:    opts,
	}
}

// ScopeTo restricts bot resolution to one bot. Plugins bound to any other
// bot are disabled.
func (im *Importer) ScopeTo(botName string) {
	im.scope = botName
}

// Discover lists every package default config under the plugins root.
func (im *Importer) Discover() ([]string, error) {
	if _, err := os.Stat(im.root); err != nil {
		return nil, fmt.Errorf("plugins folder: %w", err)
	}
	matches, err := doublestar.Glob(os.DirFS(im.root), "*/config.yaml")
	if err != nil {
		return nil, fmt.Errorf("globbing plugin configs: %w", err)
	}
	sort.Strings(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(im.root, m)
	}
	return paths, nil
}

func (im *Importer) workingBots() *bots.Registry {
	if im.scope == "" {
		return im.bots
	}
	scoped, err := im.bots.Only(im.scope)
	if err != nil {
		log.Error().Err(err).Str("bot", im.scope).Msg("target bot not loaded")
		return bots.NewRegistry()
	}
	return scoped
}

// Import runs every discovered plugin through the import states and returns
// the enabled plugins. A failing plugin is disabled and logged; the rest of
// the batch continues.
func (im *Importer) Import(ctx context.Context) ([]*Plugin, error) {
	paths, err := im.Discover()
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("configs", paths).Msg("plugin configs found")

	working := im.workingBots()
	seen := map[string]bool{}
	im.entries = im.entries[:0]

	var out []*Plugin
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		e := &Entry{Path: path, State: StateDiscovered}
		im.entries = append(im.entries, e)

		cfg, err := LoadConfig(path, im.userDir)
		if err != nil {
			im.disable(e, err)
			continue
		}
		e.Config = cfg
		e.State = StateConfigLoaded

		if seen[cfg.Name] {
			im.disable(e, fmt.Errorf("duplicate plugin name %q", cfg.Name))
			continue
		}
		seen[cfg.Name] = true

		if !cfg.Enabled {
			e.State = StateDisabled
			log.Warn().Str("plugin", cfg.Name).Msg("plugin is disabled")
			continue
		}

		bot, err := working.Get(cfg.Bot.Name)
		if err != nil {
			im.disable(e, err)
			continue
		}
		e.State = StateBotResolved

		ctor, err := im.modules.Lookup(cfg.Module)
		if err != nil {
			im.disable(e, err)
			continue
		}
		p := New(cfg, bot, im.opts...)
		if err := ctor(p); err != nil {
			im.disable(e, fmt.Errorf("constructing plugin: %w", err))
			continue
		}

		e.Plugin = p
		e.State = StateEnabled
		out = append(out, p)
		log.Info().Str("plugin", cfg.Name).Str("bot", bot.Name()).Int("routes", len(p.Routes())).Msg("plugin imported")
	}
	return out, nil
}

func (im *Importer) disable(e *Entry, err error) {
	e.Err = err
	e.State = StateDisabled
	e.Config.Enabled = false
	log.Error().Err(err).Str("plugin", e.Config.Name).Str("path", e.Path).Msg("disabling plugin")
}

// Entries reports the final state of every plugin from the last Import.
func (im *Importer) Entries() []Entry {
	out := make([]Entry, len(im.entries))
	for i, e := range im.entries {
		out[i] = *e
	}
	return out
}
