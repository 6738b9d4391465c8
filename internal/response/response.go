// Package response models what a route handler may return: plain text, a
// Slack message, or a raw structured map.
package response

import (
	"encoding/json"

	"github.com/slack-go/slack"
)

// Kind identifies which representation a Response holds.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindMessage
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMessage:
		return "message"
	case KindMap:
		return "map"
	default:
		return "empty"
	}
}

// Response is a handler result. The zero value is empty.
type Response struct {
	kind Kind
	text string
	msg  slack.Msg
	m    map[string]any
}

// Text returns a plain text response.
func Text(s string) Response {
	return Response{kind: KindText, text: s}
}

// Message returns a response holding a Slack message.
func Message(msg slack.Msg) Response {
	return Response{kind: KindMessage, msg: msg}
}

// Map returns a response holding a raw structured map. A nil map is empty.
func Map(m map[string]any) Response {
	if m == nil {
		return Response{}
	}
	return Response{kind: KindMap, m: m}
}

// Ack builds the acknowledgement returned after a message was sent.
func Ack(channel, ts string) Response {
	return Map(map[string]any{"ok": true, "channel": channel, "ts": ts})
}

// Kind returns the representation held.
func (r Response) Kind() Kind { return r.kind }

// IsEmpty reports whether the handler returned nothing.
func (r Response) IsEmpty() bool { return r.kind == KindEmpty }

// Normalize turns an empty response into an empty text response so there is
// always something to render.
func (r Response) Normalize() Response {
	if r.IsEmpty() {
		return Text("")
	}
	return r
}

// TextValue returns the text of a text response, or the text field of the
// other kinds.
func (r Response) TextValue() string {
	switch r.kind {
	case KindText:
		return r.text
	case KindMessage:
		return r.msg.Text
	case KindMap:
		s, _ := r.m["text"].(string)
		return s
	default:
		return ""
	}
}

// SlackMessage returns the held message and whether the response is one.
func (r Response) SlackMessage() (slack.Msg, bool) {
	return r.msg, r.kind == KindMessage
}

// Wire converts any kind to the same outbound map shape.
func (r Response) Wire() map[string]any {
	switch r.kind {
	case KindText:
		return map[string]any{"text": r.text}
	case KindMessage:
		out := map[string]any{}
		b, err := json.Marshal(r.msg)
		if err != nil {
			return map[string]any{"text": r.msg.Text}
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return map[string]any{"text": r.msg.Text}
		}
		return out
	case KindMap:
		return r.m
	default:
		return map[string]any{"text": ""}
	}
}

// Body renders the response for an HTTP reply.
func (r Response) Body() ([]byte, string) {
	switch r.kind {
	case KindMessage, KindMap:
		b, err := json.Marshal(r.Wire())
		if err == nil {
			return b, "application/json"
		}
		return []byte(r.TextValue()), "text/plain; charset=utf-8"
	default:
		return []byte(r.text), "text/plain; charset=utf-8"
	}
}

// MessageRef extracts the channel and ts of a send-message acknowledgement.
// The channel may be a plain ID or an object with an "id" field.
func (r Response) MessageRef() (channel, ts string, ok bool) {
	if r.kind != KindMap {
		return "", "", false
	}
	ts, _ = r.m["ts"].(string)
	switch c := r.m["channel"].(type) {
	case string:
		channel = c
	case map[string]any:
		channel, _ = c["id"].(string)
	}
	if ts == "" || channel == "" {
		return "", "", false
	}
	return channel, ts, true
}
