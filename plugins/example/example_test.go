package example

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/glados/internal/bots"
	"github.com/ziadkadry99/glados/internal/core"
	"github.com/ziadkadry99/glados/internal/db"
	"github.com/ziadkadry99/glados/internal/interactions"
	"github.com/ziadkadry99/glados/internal/payload"
	"github.com/ziadkadry99/glados/internal/plugins"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/router"
)

const secret = "example-secret"

type slackCall struct {
	Path string
	Form map[string]string
	JSON map[string]any
}

type fakeSlack struct {
	mu    sync.Mutex
	calls []slackCall
	seq   int
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := slackCall{Path: r.URL.Path, Form: map[string]string{}}
	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		r.ParseForm()
		for k := range r.PostForm {
			call.Form[k] = r.PostForm.Get(k)
		}
	} else {
		json.NewDecoder(r.Body).Decode(&call.JSON)
	}
	f.calls = append(f.calls, call)

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/chat.postMessage", "/chat.update":
		f.seq++
		fmt.Fprintf(w, `{"ok":true,"channel":%q,"ts":"1700000000.00010%d"}`, call.Form["channel"], f.seq)
	case "/views.open":
		fmt.Fprint(w, `{"ok":true,"view":{"id":"V1"}}`)
	default:
		fmt.Fprint(w, `{"ok":true}`)
	}
}

func (f *fakeSlack) byPath(path string) []slackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slackCall
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

type fixture struct {
	glados *core.Glados
	slack  *fakeSlack
	store  *interactions.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := &fakeSlack{}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	store := interactions.NewStore(database)

	g := core.New(core.Options{Store: store})
	bot := bots.New("glados", "xoxb-test", secret, bots.WithAPIURL(srv.URL+"/"))
	g.AddBot(bot)

	reg := plugins.NewRegistry()
	require.NoError(t, Register(reg))
	ctor, err := reg.Lookup(Module)
	require.NoError(t, err)

	p := plugins.New(plugins.Config{
		Name:    "example",
		Module:  Module,
		Enabled: true,
		Bot:     plugins.BotRef{Name: "glados"},
		Extra:   map[string]any{"reminder_prefix": "Ping:"},
	}, bot)
	require.NoError(t, ctor(p))
	require.NoError(t, g.AddPlugin(p))

	return &fixture{glados: g, slack: fs, store: store}
}

func sendRequest(t *testing.T, route, body string) *request.Request {
	t.Helper()
	tree, err := payload.Parse([]byte(body))
	require.NoError(t, err)
	req, err := request.New(request.Send, tree, request.WithBot("glados"), request.WithRoute(route))
	require.NoError(t, err)
	return req
}

func signedRequest(t *testing.T, category request.Category, body string, opts ...request.Option) *request.Request {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)

	tree, err := payload.Parse([]byte(body))
	require.NoError(t, err)
	opts = append(opts, request.WithVerification(&request.Verification{
		Body:      []byte(body),
		Timestamp: ts,
		Signature: "v0=" + hex.EncodeToString(mac.Sum(nil)),
	}))
	req, err := request.New(category, tree, opts...)
	require.NoError(t, err)
	return req
}

func TestRegisterTwice(t *testing.T) {
	reg := plugins.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg))
}

func TestSecondBotCopyConflicts(t *testing.T) {
	f := newFixture(t)
	wheatley := bots.New("wheatley", "xoxb-test", secret)
	f.glados.AddBot(wheatley)

	p := plugins.New(plugins.Config{
		Name:    "example_wheatley",
		Module:  Module,
		Enabled: true,
		Bot:     plugins.BotRef{Name: "wheatley"},
	}, wheatley)
	require.NoError(t, New(p))

	// testMenu and remind are global, so a second copy cannot bind.
	assert.ErrorIs(t, f.glados.AddPlugin(p), router.ErrRouteExists)
	assert.Len(t, f.glados.Plugins(), 1)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)

	resp, err := f.glados.Dispatch(context.Background(), sendRequest(t, "send_message", `{"channel":"C1","message":"hello"}`))
	require.NoError(t, err)

	ch, ts, ok := resp.MessageRef()
	require.True(t, ok)
	assert.Equal(t, "C1", ch)
	assert.NotEmpty(t, ts)

	posts := f.slack.byPath("/chat.postMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].Form["text"])
	assert.Contains(t, posts[0].Form["blocks"], "hello")

	// No reminder requested, nothing stored.
	assert.Nil(t, findInteraction(t, f.store, ch, ts))
}

func TestSendMessageRequiresChannel(t *testing.T) {
	f := newFixture(t)

	_, err := f.glados.Dispatch(context.Background(), sendRequest(t, "send_message", `{"message":"hello"}`))
	assert.ErrorIs(t, err, request.ErrMalformedRequest)
	assert.Empty(t, f.slack.byPath("/chat.postMessage"))
}

func TestReminderFollowup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.glados.Dispatch(ctx, sendRequest(t, "send_message", `{"channel":"C1","message":"standup","remind_in":60}`))
	require.NoError(t, err)
	ch, ts, ok := resp.MessageRef()
	require.True(t, ok)

	it := findInteraction(t, f.store, ch, ts)
	require.NotNil(t, it)
	assert.Equal(t, RemindAction, it.FollowupAction)
	assert.Equal(t, "glados", it.Bot)

	n, err := f.glados.RunFollowups(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "reminder is not due yet")

	n, err = f.glados.RunFollowups(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	posts := f.slack.byPath("/chat.postMessage")
	require.Len(t, posts, 2)
	assert.Equal(t, "Ping: standup", posts[1].Form["text"])
	assert.Equal(t, ts, posts[1].Form["thread_ts"])

	// At most once.
	n, err = f.glados.RunFollowups(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAckCancelsReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.glados.Dispatch(ctx, sendRequest(t, "send_message", `{"channel":"C1","message":"standup","remind_in":60}`))
	require.NoError(t, err)
	ch, ts, _ := resp.MessageRef()

	body := fmt.Sprintf(`{"type":"block_actions","user":{"id":"U7"},"container":{"channel_id":%q,"message_ts":%q},"actions":[{"action_id":"ack","value":"ack"}]}`, ch, ts)
	ack, err := f.glados.Dispatch(ctx, signedRequest(t, request.Interaction, body, request.WithBot("glados")))
	require.NoError(t, err)
	assert.Equal(t, "I hear you", ack.TextValue())

	it := findInteraction(t, f.store, ch, ts)
	require.NotNil(t, it)
	assert.Equal(t, "U7", it.Data["acknowledged_by"])
	assert.Empty(t, it.FollowupAction)

	n, err := f.glados.RunFollowups(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpdateMessage(t *testing.T) {
	f := newFixture(t)

	resp, err := f.glados.Dispatch(context.Background(),
		sendRequest(t, "update_message", `{"channel":"C1","ts":"1700000000.000001","message":"edited"}`))
	require.NoError(t, err)
	_, _, ok := resp.MessageRef()
	assert.True(t, ok)

	updates := f.slack.byPath("/chat.update")
	require.Len(t, updates, 1)
	assert.Equal(t, "1700000000.000001", updates[0].Form["ts"])
	assert.Contains(t, updates[0].Form["blocks"], "Message Updated")
}

func TestAppHome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.glados.Dispatch(ctx, signedRequest(t, request.Events,
		`{"type":"event_callback","event":{"type":"app_home_opened","user":"U1","tab":"messages"}}`, request.WithBot("glados")))
	require.NoError(t, err)
	assert.Empty(t, f.slack.byPath("/views.publish"))

	_, err = f.glados.Dispatch(ctx, signedRequest(t, request.Events,
		`{"type":"event_callback","event":{"type":"app_home_opened","user":"U1","tab":"home"}}`, request.WithBot("glados")))
	require.NoError(t, err)

	published := f.slack.byPath("/views.publish")
	require.Len(t, published, 1)
	assert.Equal(t, "U1", published[0].JSON["user_id"])
	view, _ := published[0].JSON["view"].(map[string]any)
	assert.Equal(t, "home", view["type"])
}

func TestSlashSecurityOpensModal(t *testing.T) {
	f := newFixture(t)

	_, err := f.glados.Dispatch(context.Background(), signedRequest(t, request.Slash,
		`{"command":"/security","trigger_id":"T42"}`, request.WithBot("glados"), request.WithRoute("security")))
	require.NoError(t, err)

	opened := f.slack.byPath("/views.open")
	require.Len(t, opened, 1)
	assert.Equal(t, "T42", opened[0].JSON["trigger_id"])
}

func TestSlashSecurityWithoutTrigger(t *testing.T) {
	f := newFixture(t)

	resp, err := f.glados.Dispatch(context.Background(), signedRequest(t, request.Slash,
		`{"command":"/security"}`, request.WithBot("glados"), request.WithRoute("security")))
	require.NoError(t, err)
	assert.Contains(t, resp.TextValue(), "Security Help Center")
	assert.Empty(t, f.slack.byPath("/views.open"))
}

func TestGoToAlertsMessagesUser(t *testing.T) {
	f := newFixture(t)

	body := `{"type":"block_actions","user":{"id":"U9"},"actions":[{"action_id":"gotoSecurityAlerts","value":"go"}]}`
	_, err := f.glados.Dispatch(context.Background(), signedRequest(t, request.Interaction, body, request.WithBot("glados")))
	require.NoError(t, err)

	posts := f.slack.byPath("/chat.postMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "U9", posts[0].Form["channel"])
	assert.Contains(t, posts[0].Form["blocks"], `"action_id":"ack"`)
}

func TestExternalMenu(t *testing.T) {
	f := newFixture(t)

	resp, err := f.glados.Dispatch(context.Background(), signedRequest(t, request.Menu,
		`{"type":"block_suggestion","action_id":"testMenu","value":"ger"}`))
	require.NoError(t, err)

	body, contentType := resp.Body()
	assert.Equal(t, "application/json", contentType)

	var out struct {
		Options []struct {
			Value string `json:"value"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Options, 1)
	assert.Equal(t, "DE", out.Options[0].Value)
}

func TestCountryOptionsEmptyQuery(t *testing.T) {
	assert.Len(t, countryOptions(""), len(countries))
	assert.Empty(t, countryOptions("atlantis"))
}

func TestMessageEvent(t *testing.T) {
	f := newFixture(t)

	resp, err := f.glados.Dispatch(context.Background(), signedRequest(t, request.Events,
		`{"type":"event_callback","event":{"type":"message","channel":"C1","text":"hi glados"}}`, request.WithBot("glados")))
	require.NoError(t, err)
	assert.Equal(t, "", resp.TextValue())
	assert.Empty(t, f.slack.calls)
}

func findInteraction(t *testing.T, store *interactions.Store, channel, ts string) *interactions.Interaction {
	t.Helper()
	ctx := context.Background()
	sess, err := store.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()
	it, err := store.FindByChannelAndTimestamp(ctx, sess, channel, ts)
	require.NoError(t, err)
	return it
}
