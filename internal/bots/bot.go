// Package bots holds Slack bot identities, their Web API client, and the
// importer that loads them from configuration.
package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
)

var (
	// ErrAuthentication is returned when a request signature is missing or
	// does not verify.
	ErrAuthentication = errors.New("request signature is not valid")

	// ErrBotNotFound is returned when a plugin or request names an unknown bot.
	ErrBotNotFound = errors.New("bot not found")
)

// DefaultTimeout bounds every Slack Web API call.
const DefaultTimeout = 10 * time.Second

// Bot is a Slack bot identity with an API client.
type Bot struct {
	name          string
	token         string
	signingSecret string

	apiURL     string
	timeout    time.Duration
	httpClient *http.Client
	client     *slack.Client
}

// Option configures a Bot.
type Option func(*Bot)

// WithAPIURL points the client at a different Slack API base URL. The URL
// must end with a slash.
func WithAPIURL(u string) Option {
	return func(b *Bot) { b.apiURL = u }
}

// WithTimeout sets the per-call API timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bot) { b.httpClient = c }
}

// New creates a bot.
func New(name, token, signingSecret string, opts ...Option) *Bot {
	b := &Bot{
		name:          name,
		token:         token,
		signingSecret: signingSecret,
		apiURL:        slack.APIURL,
		timeout:       DefaultTimeout,
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.client = slack.New(token,
		slack.OptionAPIURL(b.apiURL),
		slack.OptionHTTPClient(b.httpClient),
	)
	return b
}

// Name returns the bot name used to scope routes.
func (b *Bot) Name() string { return b.name }

// HasToken reports whether the bot can call the Web API.
func (b *Bot) HasToken() bool { return b.token != "" }

// Client exposes the underlying Slack client for calls not wrapped here.
func (b *Bot) Client() *slack.Client { return b.client }

// VerifySignature checks the v0 Slack signature of a request.
func (b *Bot) VerifySignature(v *request.Verification) error {
	if v == nil || v.Timestamp == "" || v.Signature == "" {
		return fmt.Errorf("%w: missing signature headers", ErrAuthentication)
	}
	if b.signingSecret == "" {
		return fmt.Errorf("%w: bot %s has no signing secret", ErrAuthentication, b.name)
	}

	header := http.Header{}
	header.Set("X-Slack-Request-Timestamp", v.Timestamp)
	header.Set("X-Slack-Signature", v.Signature)

	sv, err := slack.NewSecretsVerifier(header, b.signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if _, err := sv.Write(v.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if err := sv.Ensure(); err != nil {
		log.Warn().Str("bot", b.name).Msg("invalid slack signature")
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return nil
}

// SendMessage posts a message and returns the acknowledgement map carrying
// the channel and ts of the new message.
func (b *Bot) SendMessage(ctx context.Context, channel string, resp response.Response) (response.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch, ts, err := b.client.PostMessageContext(ctx, channel, msgOptions(resp)...)
	if err != nil {
		return response.Response{}, fmt.Errorf("bot %s: posting message to %s: %w", b.name, channel, err)
	}
	log.Debug().Str("bot", b.name).Str("channel", ch).Str("ts", ts).Msg("message sent")
	return response.Ack(ch, ts), nil
}

// UpdateMessage replaces the content of a message the bot sent.
func (b *Bot) UpdateMessage(ctx context.Context, channel, ts string, resp response.Response) (response.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ch, newTS, _, err := b.client.UpdateMessageContext(ctx, channel, ts, msgOptions(resp)...)
	if err != nil {
		return response.Response{}, fmt.Errorf("bot %s: updating message %s/%s: %w", b.name, channel, ts, err)
	}
	return response.Ack(ch, newTS), nil
}

// DeleteMessage deletes a message the bot sent.
func (b *Bot) DeleteMessage(ctx context.Context, channel, ts string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, _, err := b.client.DeleteMessageContext(ctx, channel, ts); err != nil {
		return fmt.Errorf("bot %s: deleting message %s/%s: %w", b.name, channel, ts, err)
	}
	return nil
}

// OpenModal opens a modal in response to a trigger from a slash command or
// interaction.
func (b *Bot) OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if _, err := b.client.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("bot %s: opening modal: %w", b.name, err)
	}
	return nil
}

// PublishHome publishes an App Home view for a user. A view without a type
// is published as a home tab.
func (b *Bot) PublishHome(ctx context.Context, userID string, view slack.HomeTabViewRequest) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if view.Type == "" {
		view.Type = slack.VTHomeTab
	}
	if _, err := b.client.PublishViewContext(ctx, userID, view, ""); err != nil {
		return fmt.Errorf("bot %s: publishing home for %s: %w", b.name, userID, err)
	}
	return nil
}

// msgOptions renders a response as chat.postMessage options.
func msgOptions(resp response.Response) []slack.MsgOption {
	var msg slack.Msg
	switch resp.Kind() {
	case response.KindMessage:
		msg, _ = resp.SlackMessage()
	case response.KindMap:
		b, err := json.Marshal(resp.Wire())
		if err == nil {
			if err := json.Unmarshal(b, &msg); err != nil {
				msg = slack.Msg{Text: resp.TextValue()}
			}
		}
	default:
		msg = slack.Msg{Text: resp.TextValue()}
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks.BlockSet) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks.BlockSet...))
	}
	if len(msg.Attachments) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(msg.Attachments...))
	}
	if msg.ThreadTimestamp != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTimestamp))
	}
	return opts
}
