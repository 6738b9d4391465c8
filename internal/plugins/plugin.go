// Package plugins implements plugins, their configuration merge, and the
// importer that discovers and constructs them.
package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/bots"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
	"github.com/ziadkadry99/glados/internal/router"
)

// Plugin is a named set of routes bound to one bot.
type Plugin struct {
	cfg    Config
	bot    *bots.Bot
	client *http.Client

	routes map[request.Category]map[string]router.Handler
	order  []router.Route
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithHTTPClient sets the client used to post to response URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Plugin) { p.client = c }
}

// New creates a plugin bound to bot.
func New(cfg Config, bot *bots.Bot, opts ...Option) *Plugin {
	p := &Plugin{
		cfg:    cfg,
		bot:    bot,
		client: &http.Client{Timeout: 10 * time.Second},
		routes: make(map[request.Category]map[string]router.Handler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.cfg.Name }

// Bot returns the bot the plugin is bound to.
func (p *Plugin) Bot() *bots.Bot { return p.bot }

// Config returns the effective plugin configuration.
func (p *Plugin) Config() Config { return p.cfg }

// AddRoute registers a handler. For bot-scoped categories the stored name is
// "{bot}_{name}".
func (p *Plugin) AddRoute(category request.Category, name string, fn router.Handler) error {
	if category.BotScoped() {
		if p.bot == nil {
			return fmt.Errorf("plugin %s: route %s in %s needs a bot", p.cfg.Name, name, category)
		}
		name = p.bot.Name() + "_" + name
	}

	byName, ok := p.routes[category]
	if !ok {
		byName = make(map[string]router.Handler)
		p.routes[category] = byName
	}
	if _, ok := byName[name]; ok {
		return fmt.Errorf("%w: a route with the name of %s already exists in the route type %s",
			router.ErrRouteExists, name, category)
	}
	byName[name] = fn
	p.order = append(p.order, router.Route{Category: category, Name: name, Handler: p.Send})
	return nil
}

// Routes returns every route in registration order. Each handler goes
// through Send.
func (p *Plugin) Routes() []router.Route {
	out := make([]router.Route, len(p.order))
	copy(out, p.order)
	return out
}

// Send verifies the request if its category needs it, runs the handler and
// normalizes the result. Interaction requests with a response URL also get
// the response posted there.
func (p *Plugin) Send(ctx context.Context, req *request.Request) (response.Response, error) {
	fn, ok := p.routes[req.Category()][req.Route()]
	if !ok {
		return response.Response{}, fmt.Errorf("%w: plugin %s has no route %s in %s",
			router.ErrRouteNotFound, p.cfg.Name, req.Route(), req.Category())
	}

	if req.Category().Verified() {
		if p.bot == nil {
			return response.Response{}, fmt.Errorf("%w: plugin %s has no bot", bots.ErrAuthentication, p.cfg.Name)
		}
		if err := p.bot.VerifySignature(req.Verification()); err != nil {
			return response.Response{}, err
		}
	}

	resp, err := fn(ctx, req)
	if err != nil {
		return response.Response{}, err
	}
	if resp.IsEmpty() {
		log.Debug().Str("plugin", p.cfg.Name).Str("route", req.Route()).Msg("handler returned nothing")
	}
	resp = resp.Normalize()

	if req.Category() == request.Interaction && req.ResponseURL() != "" {
		if err := p.postResponse(ctx, req.ResponseURL(), resp); err != nil {
			log.Error().Err(err).Str("plugin", p.cfg.Name).Str("route", req.Route()).Msg("posting to response_url")
		}
	}
	return resp, nil
}

// postResponse POSTs the wire form of resp to a Slack response URL. Map
// responses go out verbatim, including keys slack.WebhookMessage has no
// field for.
func (p *Plugin) postResponse(ctx context.Context, url string, resp response.Response) error {
	payload, err := json.Marshal(resp.Wire())
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating response_url request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending to response_url: %w", err)
	}
	defer r.Body.Close()

	if r.StatusCode >= 300 {
		return fmt.Errorf("response_url returned status %d", r.StatusCode)
	}
	return nil
}
