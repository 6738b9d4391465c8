package bots

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Registry maps bot names to bots. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	bots map[string]*Bot
}

// NewRegistry creates a registry holding bs.
func NewRegistry(bs ...*Bot) *Registry {
	r := &Registry{bots: make(map[string]*Bot, len(bs))}
	for _, b := range bs {
		r.Add(b)
	}
	return r
}

// Add registers a bot, replacing any bot with the same name.
func (r *Registry) Add(b *Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[b.Name()]; ok {
		log.Warn().Str("bot", b.Name()).Msg("replacing bot with the same name")
	}
	r.bots[b.Name()] = b
}

// Get returns the named bot or ErrBotNotFound.
func (r *Registry) Get(name string) (*Bot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBotNotFound, name)
	}
	return b, nil
}

// Names lists registered bot names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bots))
	for n := range r.bots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered bots.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bots)
}

// Only returns a registry holding just the named bot.
func (r *Registry) Only(name string) (*Registry, error) {
	b, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return NewRegistry(b), nil
}

// Spec is one bot entry in a bot config file.
type Spec struct {
	Token         Credential `yaml:"token"`
	SigningSecret Credential `yaml:"signing_secret"`
}

// Importer loads bots from the YAML files in a directory.
type Importer struct {
	dir  string
	key  KeySource
	opts []Option
}

// NewImporter creates an importer over dir. key is consulted only for
// enc_env_var credentials and may be nil. opts are applied to every bot.
func NewImporter(dir string, key KeySource, opts ...Option) *Importer {
	return &Importer{dir: dir, key: key, opts: opts}
}

// Files lists the bot config files, sorted.
func (im *Importer) Files() ([]string, error) {
	if _, err := os.Stat(im.dir); err != nil {
		return nil, fmt.Errorf("bots config folder: %w", err)
	}
	matches, err := doublestar.Glob(os.DirFS(im.dir), "*.{yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("globbing bot configs: %w", err)
	}
	sort.Strings(matches)
	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(im.dir, m)
	}
	return files, nil
}

// Import reads every bot definition. A bot whose credentials cannot be
// resolved is logged and skipped; the rest are still imported.
func (im *Importer) Import() (*Registry, error) {
	files, err := im.Files()
	if err != nil {
		return nil, err
	}
	log.Debug().Strs("files", files).Msg("bot config files found")

	reg := NewRegistry()
	for _, path := range files {
		specs, err := readBotFile(path)
		if err != nil {
			return nil, err
		}
		for _, name := range sortedKeys(specs) {
			b, err := im.build(name, specs[name])
			if err != nil {
				log.Error().Err(err).Str("bot", name).Str("file", path).Msg("rejecting bot")
				continue
			}
			reg.Add(b)
			log.Info().Str("bot", name).Msg("bot imported")
		}
	}
	return reg, nil
}

func (im *Importer) build(name string, spec Spec) (*Bot, error) {
	if spec.Token.IsZero() {
		return nil, fmt.Errorf("%w: no token configured", ErrCredential)
	}
	token, err := spec.Token.Resolve(im.key)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	secret, err := spec.SigningSecret.Resolve(im.key)
	if err != nil {
		return nil, fmt.Errorf("signing_secret: %w", err)
	}
	return New(name, token, secret, im.opts...), nil
}

// readBotFile decodes every YAML document in a file. Later documents
// override earlier ones for the same bot name.
func readBotFile(path string) (map[string]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	out := map[string]Spec{}
	dec := yaml.NewDecoder(f)
	for {
		var doc map[string]Spec
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		for name, spec := range doc {
			out[name] = spec
		}
	}
	return out, nil
}

func sortedKeys(m map[string]Spec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteFile writes specs as a single bot config document.
func WriteFile(path string, specs map[string]Spec) error {
	data, err := yaml.Marshal(specs)
	if err != nil {
		return fmt.Errorf("marshalling bots: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
