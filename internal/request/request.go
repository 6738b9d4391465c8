package request

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/interactions"
	"github.com/ziadkadry99/glados/internal/payload"
	"github.com/ziadkadry99/glados/internal/response"
)

// ErrMalformedRequest is returned when a payload does not carry what its
// category needs to pick a route.
var ErrMalformedRequest = errors.New("malformed request")

// Verification is the material needed to check a Slack request signature.
type Verification struct {
	Body      []byte
	Timestamp string // X-Slack-Request-Timestamp
	Signature string // X-Slack-Signature
}

// Store is the part of the interaction store a request uses.
type Store interface {
	NewSession(ctx context.Context) (*interactions.Session, error)
	FindByChannelAndTimestamp(ctx context.Context, sess *interactions.Session, channel, ts string) (*interactions.Interaction, error)
	Insert(ctx context.Context, sess *interactions.Session, it *interactions.Interaction) error
	UpdateFields(ctx context.Context, sess *interactions.Session, id string, fields map[string]any) error
	LinkToMessage(ctx context.Context, sess *interactions.Session, id, channel, ts string) error
	LinkToMessageResponse(ctx context.Context, sess *interactions.Session, id string, ack response.Response) error
}

// Request is one normalized inbound event.
type Request struct {
	category     Category
	name         string
	botName      string
	payload      payload.Tree
	data         map[string]any
	verification *Verification
	responseURL  string
	triggerID    string

	store       Store
	session     *interactions.Session
	interaction *interactions.Interaction
	pending     *interactions.Interaction

	// AutoLink asks the orchestrator to persist the pending interaction and
	// link it to the message the handler sent.
	AutoLink bool
}

// Option configures a Request.
type Option func(*Request)

// WithRoute sets the explicit route for categories that take one.
func WithRoute(route string) Option {
	return func(r *Request) { r.name = route }
}

// WithBot sets the name of the bot the request is addressed to.
func WithBot(name string) Option {
	return func(r *Request) { r.botName = name }
}

// WithVerification attaches signature material.
func WithVerification(v *Verification) Option {
	return func(r *Request) { r.verification = v }
}

// WithData attaches extra data, e.g. loaded from a store.
func WithData(data map[string]any) Option {
	return func(r *Request) { r.data = data }
}

// New builds a request and computes its route name. The name is fixed at
// construction and does not follow later payload changes.
func New(category Category, tree payload.Tree, opts ...Option) (*Request, error) {
	r := &Request{
		category: category,
		payload:  tree,
		AutoLink: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	switch category {
	case Menu:
		r.name = tree.String("action_id", "")
	case Interaction:
		if tree.Len("actions") == 0 {
			return nil, fmt.Errorf("%w: interaction payload has no actions", ErrMalformedRequest)
		}
		r.name = tree.String("actions.0.action_id", "")
		r.responseURL = tree.String("response_url", "")
		r.triggerID = tree.String("trigger_id", "")
	case Events:
		r.name = tree.String("event.type", "")
	case Send, Slash, Response, Callback:
	default:
		return nil, fmt.Errorf("%w: unknown category %s", ErrMalformedRequest, category)
	}

	if r.name == "" {
		return nil, fmt.Errorf("%w: no route for %s request", ErrMalformedRequest, category)
	}
	if category == Slash {
		r.triggerID = tree.String("trigger_id", "")
		r.responseURL = tree.String("response_url", "")
	}
	return r, nil
}

// Category returns the request category.
func (r *Request) Category() Category { return r.category }

// Name returns the route name derived from the request.
func (r *Request) Name() string { return r.name }

// Route returns the dispatch key: the name prefixed with the bot for
// bot-scoped categories.
func (r *Request) Route() string {
	if r.category.BotScoped() {
		return r.botName + "_" + r.name
	}
	return r.name
}

// BotName returns the addressed bot, if any.
func (r *Request) BotName() string { return r.botName }

// Payload returns the decoded payload.
func (r *Request) Payload() *payload.Tree { return &r.payload }

// Data returns extra data attached to the request.
func (r *Request) Data() map[string]any { return r.data }

// Verification returns the signature material, or nil.
func (r *Request) Verification() *Verification { return r.verification }

// ResponseURL returns the out-of-band reply URL of an interactive request.
func (r *Request) ResponseURL() string { return r.responseURL }

// TriggerID returns the trigger used to open modals.
func (r *Request) TriggerID() string { return r.triggerID }

// SetStore opens a session on store for the lifetime of this request.
func (r *Request) SetStore(ctx context.Context, store Store) error {
	sess, err := store.NewSession(ctx)
	if err != nil {
		return err
	}
	if !sess.Active() {
		return interactions.ErrSessionInactive
	}
	r.store = store
	r.session = sess
	return nil
}

// Session returns the request's store session, or nil.
func (r *Request) Session() *interactions.Session { return r.session }

// CloseSession ends the session. Uncommitted work is rolled back.
func (r *Request) CloseSession() {
	if r.session == nil {
		return
	}
	if err := r.session.Close(); err != nil {
		log.Error().Err(err).Str("route", r.Route()).Msg("closing interaction session")
	}
}

// LoadInteraction looks up the interaction for the message this request
// refers to via container.channel_id and container.message_ts.
func (r *Request) LoadInteraction(ctx context.Context) error {
	if !r.session.Active() {
		return fmt.Errorf("loading interaction: %w", interactions.ErrSessionInactive)
	}
	r.interaction = nil

	container := r.payload.Sub("container")
	channel := container.String("channel_id", "")
	ts := container.String("message_ts", "")
	if channel == "" || ts == "" {
		log.Debug().Str("route", r.Route()).Msg("no message container in payload")
		return nil
	}

	it, err := r.store.FindByChannelAndTimestamp(ctx, r.session, channel, ts)
	if err != nil {
		return err
	}
	if it == nil {
		log.Info().Str("channel", channel).Str("ts", ts).Msg("no interaction for message")
	}
	r.interaction = it
	return nil
}

// SetInteraction attaches an interaction loaded elsewhere.
func (r *Request) SetInteraction(it *interactions.Interaction) { r.interaction = it }

// Interaction returns the correlated interaction, or nil.
func (r *Request) Interaction() *interactions.Interaction { return r.interaction }

// HasInteraction reports whether a correlated interaction was found.
func (r *Request) HasInteraction() bool { return r.interaction != nil }

// InteractionID returns the correlated interaction's ID, or "".
func (r *Request) InteractionID() string {
	if r.interaction == nil {
		return ""
	}
	return r.interaction.ID
}

// InteractionOptions describe a new interaction to track.
type InteractionOptions struct {
	FollowupAction string
	FollowupAt     *time.Time
	TTL            *int
	Data           map[string]any
}

// NewInteraction creates an interaction owned by this request's bot. It is
// not persisted; the orchestrator stores it if the handler sends a message
// and AutoLink is set.
func (r *Request) NewInteraction(opts InteractionOptions) *interactions.Interaction {
	data := opts.Data
	if data == nil {
		data = map[string]any{}
	}
	r.pending = &interactions.Interaction{
		Bot:            r.botName,
		Data:           data,
		FollowupAction: opts.FollowupAction,
		FollowupAt:     opts.FollowupAt,
		TTL:            opts.TTL,
	}
	return r.pending
}

// PendingInteraction returns the interaction created by NewInteraction.
func (r *Request) PendingInteraction() *interactions.Interaction { return r.pending }

// UpdateInteraction sets fields on the correlated interaction, both in the
// store and on the in-memory copy's data where applicable.
func (r *Request) UpdateInteraction(ctx context.Context, fields map[string]any) error {
	if r.interaction == nil {
		return fmt.Errorf("request has no interaction")
	}
	if err := r.requireSession(); err != nil {
		return err
	}
	if err := r.store.UpdateFields(ctx, r.session, r.interaction.ID, fields); err != nil {
		return err
	}
	if data, ok := fields["data"].(map[string]any); ok {
		r.interaction.Data = data
	}
	if action, ok := fields["followup_action"].(string); ok {
		r.interaction.FollowupAction = action
	}
	return nil
}

// AddInteraction persists an interaction within the request's session.
func (r *Request) AddInteraction(ctx context.Context, it *interactions.Interaction) (*interactions.Interaction, error) {
	if r.store == nil {
		log.Warn().Str("route", r.Route()).Msg("interaction store not set for request")
		return nil, nil
	}
	if err := r.requireSession(); err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, r.session, it); err != nil {
		return nil, err
	}
	return it, nil
}

// LinkInteractionToMessage links an interaction to a message.
func (r *Request) LinkInteractionToMessage(ctx context.Context, id, channel, ts string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	return r.store.LinkToMessage(ctx, r.session, id, channel, ts)
}

// LinkInteractionToMessageResponse links an interaction to the message
// described by a send acknowledgement.
func (r *Request) LinkInteractionToMessageResponse(ctx context.Context, id string, ack response.Response) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	return r.store.LinkToMessageResponse(ctx, r.session, id, ack)
}

func (r *Request) requireSession() error {
	if r.store == nil || !r.session.Active() {
		return fmt.Errorf("request session: %w", interactions.ErrSessionInactive)
	}
	return nil
}
