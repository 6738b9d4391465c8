// Package example is a demonstration plugin. It sends and updates messages,
// publishes an App Home, answers the /security command and an external
// select menu, and sends reminders through follow-up callbacks.
package example

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/ziadkadry99/glados/internal/plugins"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
)

// Module is the identifier plugin configs use to select this package.
const Module = "example"

// RemindAction is the callback route reminders are delivered through.
const RemindAction = "remind"

// Register adds the example module to reg.
func Register(reg *plugins.Registry) error {
	return reg.Register(Module, New)
}

type example struct {
	p   *plugins.Plugin
	now func() time.Time
}

// New adds the example routes to p.
func New(p *plugins.Plugin) error {
	return newExample(p, time.Now)
}

func newExample(p *plugins.Plugin, now func() time.Time) error {
	e := &example{p: p, now: now}
	routes := []struct {
		category request.Category
		name     string
		fn       func(context.Context, *request.Request) (response.Response, error)
	}{
		{request.Send, "send_message", e.sendMessage},
		{request.Send, "update_message", e.updateMessage},
		{request.Events, request.EventAppHomeOpened, e.appHome},
		{request.Events, request.EventMessage, e.receiveMessage},
		{request.Slash, "security", e.slashSecurity},
		{request.Interaction, "gotoSecurityAlerts", e.goToAlerts},
		{request.Interaction, "ack", e.ack},
		{request.Menu, "testMenu", e.externalMenu},
		{request.Callback, RemindAction, e.remind},
	}
	for _, r := range routes {
		if err := p.AddRoute(r.category, r.name, r.fn); err != nil {
			return err
		}
	}
	return nil
}

// sendMessage posts payload.message to payload.channel. With remind_in
// (seconds) it also schedules a reminder for the new message.
func (e *example) sendMessage(ctx context.Context, req *request.Request) (response.Response, error) {
	pl := req.Payload()
	channel, text := pl.String("channel", ""), pl.String("message", "")
	if channel == "" {
		return response.Response{}, fmt.Errorf("%w: channel is required", request.ErrMalformedRequest)
	}

	if s := pl.String("remind_in", ""); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return response.Response{}, fmt.Errorf("%w: remind_in must be a positive number of seconds", request.ErrMalformedRequest)
		}
		at := e.now().Add(time.Duration(secs) * time.Second)
		req.NewInteraction(request.InteractionOptions{
			FollowupAction: RemindAction,
			FollowupAt:     &at,
			Data:           map[string]any{"channel": channel, "message": text},
		})
	}

	msg := slack.Msg{Text: text, Blocks: slack.Blocks{BlockSet: []slack.Block{markdownSection(text)}}}
	return e.p.Bot().SendMessage(ctx, channel, response.Message(msg))
}

func (e *example) updateMessage(ctx context.Context, req *request.Request) (response.Response, error) {
	pl := req.Payload()
	channel, ts, text := pl.String("channel", ""), pl.String("ts", ""), pl.String("message", "")
	if channel == "" || ts == "" {
		return response.Response{}, fmt.Errorf("%w: channel and ts are required", request.ErrMalformedRequest)
	}

	stamp := "Message Updated: " + e.now().Format("2006-01-02 15:04")
	msg := slack.Msg{Text: text, Blocks: slack.Blocks{BlockSet: []slack.Block{
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, stamp, false, false)),
		markdownSection(text),
	}}}
	return e.p.Bot().UpdateMessage(ctx, channel, ts, response.Message(msg))
}

func (e *example) appHome(ctx context.Context, req *request.Request) (response.Response, error) {
	pl := req.Payload()
	if pl.String("event.tab", "") != "home" {
		return response.Response{}, nil
	}
	view := homeView(e.p.Config().String("home_title", "*Welcome to GLaDOS!*"))
	if err := e.p.Bot().PublishHome(ctx, pl.String("event.user", ""), view); err != nil {
		return response.Response{}, err
	}
	return response.Response{}, nil
}

func (e *example) receiveMessage(_ context.Context, req *request.Request) (response.Response, error) {
	pl := req.Payload()
	log.Info().
		Str("plugin", e.p.Name()).
		Str("channel", pl.String("event.channel", "")).
		Str("text", pl.String("event.text", "")).
		Msg("message received")
	return response.Response{}, nil
}

func (e *example) slashSecurity(ctx context.Context, req *request.Request) (response.Response, error) {
	if req.TriggerID() == "" {
		return response.Text("Security Help Center is only available from Slack."), nil
	}
	if err := e.p.Bot().OpenModal(ctx, req.TriggerID(), securityMenu()); err != nil {
		return response.Response{}, err
	}
	return response.Response{}, nil
}

func (e *example) goToAlerts(ctx context.Context, req *request.Request) (response.Response, error) {
	user := req.Payload().String("user.id", "")
	if user == "" {
		return response.Response{}, fmt.Errorf("%w: interaction has no user", request.ErrMalformedRequest)
	}
	button := slack.NewButtonBlockElement("ack", "ack",
		slack.NewTextBlockObject(slack.PlainTextType, "Acknowledge", false, false))
	confirm := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "Confirm Action", false, false),
		nil, slack.NewAccessory(button))

	msg := slack.Msg{Text: "Going to alerts", Blocks: slack.Blocks{BlockSet: []slack.Block{confirm}}}
	return e.p.Bot().SendMessage(ctx, user, response.Message(msg))
}

// ack answers the Acknowledge button. When the message is tracked, the
// pending reminder is cancelled.
func (e *example) ack(ctx context.Context, req *request.Request) (response.Response, error) {
	if req.HasInteraction() {
		data := req.Interaction().Data
		if data == nil {
			data = map[string]any{}
		}
		data["acknowledged_by"] = req.Payload().String("user.id", "")
		if err := req.UpdateInteraction(ctx, map[string]any{"data": data, "followup_action": ""}); err != nil {
			return response.Response{}, err
		}
	}
	return response.Text("I hear you"), nil
}

func (e *example) externalMenu(_ context.Context, req *request.Request) (response.Response, error) {
	return response.Map(map[string]any{"options": countryOptions(req.Payload().String("value", ""))}), nil
}

// remind runs as a follow-up of a message sent with remind_in.
func (e *example) remind(ctx context.Context, req *request.Request) (response.Response, error) {
	if !req.HasInteraction() {
		return response.Response{}, fmt.Errorf("%w: reminder without an interaction", request.ErrMalformedRequest)
	}
	it := req.Interaction()
	channel, _ := it.Data["channel"].(string)
	text, _ := it.Data["message"].(string)
	if channel == "" {
		channel = it.MessageChannel
	}

	prefix := e.p.Config().String("reminder_prefix", "Reminder:")
	msg := slack.Msg{Text: prefix + " " + text, ThreadTimestamp: it.MessageTS}
	return e.p.Bot().SendMessage(ctx, channel, response.Message(msg))
}
