// Package core wires bots, plugins, the router and the interaction store
// together and dispatches requests.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ziadkadry99/glados/internal/bots"
	"github.com/ziadkadry99/glados/internal/interactions"
	"github.com/ziadkadry99/glados/internal/payload"
	"github.com/ziadkadry99/glados/internal/plugins"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
	"github.com/ziadkadry99/glados/internal/router"
)

var tracer = otel.Tracer("glados")

// Options configures the orchestrator.
type Options struct {
	PluginsFolder       string
	PluginsConfigFolder string
	BotsConfigFolder    string
	// SecretKeyEnv names the variable holding the key for enc_env_var
	// credentials.
	SecretKeyEnv string
	APITimeout   time.Duration
	Modules      *plugins.Registry
	BotOptions   []bots.Option
	Store        *interactions.Store
}

// Glados owns the router, the bot and plugin registries, and the
// interaction store.
type Glados struct {
	opts   Options
	router *router.Router
	bots   *bots.Registry

	mu      sync.RWMutex
	plugins []*plugins.Plugin
	store   *interactions.Store
	// callbacks maps a Callback route name to the plugin that bound it.
	callbacks map[string]*plugins.Plugin
}

// New creates an orchestrator with no bots or plugins.
func New(opts Options) *Glados {
	if opts.Modules == nil {
		opts.Modules = plugins.NewRegistry()
	}
	return &Glados{
		opts:      opts,
		router:    router.New(),
		bots:      bots.NewRegistry(),
		store:     opts.Store,
		callbacks: make(map[string]*plugins.Plugin),
	}
}

// Router returns the route table.
func (g *Glados) Router() *router.Router { return g.router }

// Bots returns the bot registry.
func (g *Glados) Bots() *bots.Registry { return g.bots }

// Plugins returns the bound plugins in bind order.
func (g *Glados) Plugins() []*plugins.Plugin {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*plugins.Plugin, len(g.plugins))
	copy(out, g.plugins)
	return out
}

// SetStore sets the interaction store used by Dispatch.
func (g *Glados) SetStore(s *interactions.Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store = s
}

func (g *Glados) interactionStore() *interactions.Store {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.store
}

// AddBot registers a bot.
func (g *Glados) AddBot(b *bots.Bot) {
	g.bots.Add(b)
}

// AddPlugin binds a plugin's routes. A route conflict binds none of them.
func (g *Glados) AddPlugin(p *plugins.Plugin) error {
	if err := g.router.Bind(p); err != nil {
		return err
	}
	g.mu.Lock()
	g.plugins = append(g.plugins, p)
	for _, r := range p.Routes() {
		if r.Category == request.Callback {
			g.callbacks[r.Name] = p
		}
	}
	g.mu.Unlock()
	return nil
}

// ImportBots loads every bot from the bots config folder.
func (g *Glados) ImportBots() error {
	opts := append([]bots.Option{bots.WithTimeout(g.opts.APITimeout)}, g.opts.BotOptions...)
	var key bots.KeySource
	if g.opts.SecretKeyEnv != "" {
		key = bots.KeyFromEnv(g.opts.SecretKeyEnv)
	}

	reg, err := bots.NewImporter(g.opts.BotsConfigFolder, key, opts...).Import()
	if err != nil {
		return fmt.Errorf("importing bots: %w", err)
	}
	for _, name := range reg.Names() {
		b, _ := reg.Get(name)
		g.AddBot(b)
	}
	log.Info().Int("bots", reg.Len()).Msg("bots imported")
	return nil
}

// ImportPlugins discovers, configures and binds plugins. When targetBot is
// set only plugins bound to that bot are enabled. It returns the outcome for
// every discovered plugin.
func (g *Glados) ImportPlugins(ctx context.Context, targetBot string) ([]plugins.Entry, error) {
	im := plugins.NewImporter(g.opts.PluginsFolder, g.opts.PluginsConfigFolder, g.bots, g.opts.Modules)
	if targetBot != "" {
		im.ScopeTo(targetBot)
	}

	ps, err := im.Import(ctx)
	if err != nil {
		return im.Entries(), fmt.Errorf("importing plugins: %w", err)
	}
	for _, p := range ps {
		if err := g.AddPlugin(p); err != nil {
			return im.Entries(), fmt.Errorf("binding plugin %s: %w", p.Name(), err)
		}
	}
	log.Info().Int("plugins", len(ps)).Int("routes", g.router.Len()).Msg("plugins imported")
	return im.Entries(), nil
}

// Dispatch runs a request through the router. With a store configured the
// request gets its own session, its correlated interaction is loaded, and a
// pending auto-link interaction is persisted when the handler sent a
// message. A failure to persist rolls the session back but the handler's
// response is still returned.
func (g *Glados) Dispatch(ctx context.Context, req *request.Request) (response.Response, error) {
	ctx, span := tracer.Start(ctx, "glados.dispatch",
		trace.WithAttributes(
			attribute.String("glados.category", req.Category().String()),
			attribute.String("glados.route", req.Route()),
			attribute.String("glados.bot", req.BotName()),
		),
	)
	defer span.End()

	if store := g.interactionStore(); store != nil {
		if err := req.SetStore(ctx, store); err != nil {
			log.Error().Err(err).Str("route", req.Route()).Msg("opening interaction session, continuing without store")
		} else {
			defer req.CloseSession()
			if !req.HasInteraction() {
				if err := req.LoadInteraction(ctx); err != nil {
					if errors.Is(err, interactions.ErrConsistency) {
						span.RecordError(err)
						span.SetStatus(codes.Error, "interaction consistency")
						return response.Response{}, err
					}
					log.Error().Err(err).Str("route", req.Route()).Msg("loading interaction")
				}
			}
		}
	}
	if req.HasInteraction() {
		span.SetAttributes(attribute.String("glados.interaction_id", req.InteractionID()))
	}

	resp, err := g.router.Exec(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response.Response{}, err
	}

	g.finish(ctx, req, resp)
	return resp, nil
}

// finish links the pending interaction to the sent message and commits.
func (g *Glados) finish(ctx context.Context, req *request.Request, resp response.Response) {
	sess := req.Session()
	if !sess.Active() {
		return
	}

	if it := req.PendingInteraction(); it != nil && req.AutoLink {
		channel, ts, ok := resp.MessageRef()
		if ok {
			it.MessageChannel, it.MessageTS = channel, ts
			if _, err := req.AddInteraction(ctx, it); err != nil {
				log.Error().Err(err).Str("route", req.Route()).Msg("linking interaction to message, rolling back")
				if err := sess.Rollback(); err != nil {
					log.Error().Err(err).Msg("rolling back interaction session")
				}
				return
			}
			log.Debug().Str("interaction", it.ID).Str("channel", channel).Str("ts", ts).Msg("interaction linked")
		} else {
			log.Debug().Str("route", req.Route()).Msg("response is not a message acknowledgement, interaction not stored")
		}
	}

	if err := sess.Commit(); err != nil {
		log.Error().Err(err).Str("route", req.Route()).Msg("committing interaction session")
	}
}

// RunFollowups dispatches a Callback request for every interaction whose
// follow-up is due, routed by its followup_action. Each is marked followed
// up once attempted, so a follow-up runs at most once. Interactions owned
// by a bot this instance does not serve, or whose action is bound by a
// plugin of another bot, are left untouched for the deployment that owns
// them. It returns how many were run.
func (g *Glados) RunFollowups(ctx context.Context, now time.Time) (int, error) {
	store := g.interactionStore()
	if store == nil {
		return 0, nil
	}

	due, err := g.dueFollowups(ctx, store, now)
	if err != nil {
		return 0, err
	}

	ran := 0
	for i := range due {
		it := due[i]
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		if !g.ownsFollowup(&it) {
			continue
		}

		tree := payload.FromMap(map[string]any{
			"interaction_id":  it.ID,
			"followup_action": it.FollowupAction,
			"data":            it.Data,
		})
		req, err := request.New(request.Callback, tree, request.WithRoute(it.FollowupAction), request.WithBot(it.Bot))
		if err != nil {
			log.Error().Err(err).Str("interaction", it.ID).Msg("building follow-up request")
		} else {
			req.SetInteraction(&it)
			if _, err := g.Dispatch(ctx, req); err != nil {
				log.Error().Err(err).Str("interaction", it.ID).Str("action", it.FollowupAction).Msg("follow-up failed")
			}
		}

		if err := g.markFollowedUp(ctx, store, it.ID, now); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// ownsFollowup reports whether it belongs to one of this instance's bots
// and, when a plugin binds its action, that plugin sends as the same bot.
func (g *Glados) ownsFollowup(it *interactions.Interaction) bool {
	if _, err := g.bots.Get(it.Bot); err != nil {
		log.Debug().Str("interaction", it.ID).Str("bot", it.Bot).Msg("follow-up belongs to another bot, skipping")
		return false
	}
	g.mu.RLock()
	owner := g.callbacks[it.FollowupAction]
	g.mu.RUnlock()
	if owner != nil && owner.Bot() != nil && owner.Bot().Name() != it.Bot {
		log.Warn().Str("interaction", it.ID).Str("bot", it.Bot).
			Str("plugin", owner.Name()).Str("plugin_bot", owner.Bot().Name()).
			Msg("follow-up action is bound by another bot's plugin, skipping")
		return false
	}
	return true
}

func (g *Glados) dueFollowups(ctx context.Context, store *interactions.Store, now time.Time) ([]interactions.Interaction, error) {
	sess, err := store.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return store.DueFollowups(ctx, sess, now)
}

func (g *Glados) markFollowedUp(ctx context.Context, store *interactions.Store, id string, now time.Time) error {
	sess, err := store.NewSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := store.MarkFollowedUp(ctx, sess, id, now); err != nil {
		return err
	}
	return sess.Commit()
}

// PurgeExpired deletes interactions whose TTL has elapsed.
func (g *Glados) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	store := g.interactionStore()
	if store == nil {
		return 0, nil
	}
	sess, err := store.NewSession(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	n, err := store.DeleteExpired(ctx, sess, now)
	if err != nil {
		return 0, err
	}
	if err := sess.Commit(); err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("expired interactions purged")
	}
	return n, nil
}
