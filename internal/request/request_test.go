package request

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/glados/internal/db"
	"github.com/ziadkadry99/glados/internal/interactions"
	"github.com/ziadkadry99/glados/internal/payload"
)

func mustTree(t *testing.T, s string) payload.Tree {
	t.Helper()
	tree, err := payload.Parse([]byte(s))
	require.NoError(t, err)
	return tree
}

func TestCategoryProperties(t *testing.T) {
	tests := []struct {
		cat       Category
		botScoped bool
		verified  bool
	}{
		{Send, true, false},
		{Response, false, false},
		{Callback, false, false},
		{Slash, true, true},
		{Events, true, true},
		{Interaction, true, true},
		{Menu, false, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.botScoped, tt.cat.BotScoped(), tt.cat.String())
		assert.Equal(t, tt.verified, tt.cat.Verified(), tt.cat.String())

		parsed, err := ParseCategory(tt.cat.String())
		require.NoError(t, err)
		assert.Equal(t, tt.cat, parsed)
	}

	_, err := ParseCategory("Webhook")
	assert.Error(t, err)
}

func TestInteractionRouteName(t *testing.T) {
	req, err := New(Interaction, mustTree(t, `{"actions":[{"action_id":"ack"}]}`), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "ack", req.Name())
	assert.Equal(t, "glados_ack", req.Route())
}

func TestInteractionUsesFirstAction(t *testing.T) {
	req, err := New(Interaction, mustTree(t, `{
		"actions":[{"action_id":"first"},{"action_id":"second"}],
		"response_url":"https://hooks.example/r",
		"trigger_id":"T1"
	}`), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "first", req.Name())
	assert.Equal(t, "https://hooks.example/r", req.ResponseURL())
	assert.Equal(t, "T1", req.TriggerID())
}

func TestInteractionWithoutActionsIsMalformed(t *testing.T) {
	for _, body := range []string{`{}`, `{"actions":[]}`, `{"actions":[{"value":"x"}]}`} {
		_, err := New(Interaction, mustTree(t, body), WithBot("glados"))
		assert.True(t, errors.Is(err, ErrMalformedRequest), body)
	}
}

func TestEventRouteName(t *testing.T) {
	req, err := New(Events, mustTree(t, `{"event":{"type":"app_home_opened"}}`), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, EventAppHomeOpened, req.Name())
	assert.Equal(t, "glados_app_home_opened", req.Route())
}

func TestMenuRouteNameIsNotBotScoped(t *testing.T) {
	req, err := New(Menu, mustTree(t, `{"action_id":"testMenu"}`), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "testMenu", req.Route())
}

func TestExplicitRouteCategories(t *testing.T) {
	req, err := New(Slash, payload.Empty(), WithRoute("security"), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "glados_security", req.Route())

	req, err = New(Send, payload.Empty(), WithRoute("send_message"), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "glados_send_message", req.Route())

	req, err = New(Callback, payload.Empty(), WithRoute("remind"), WithBot("glados"))
	require.NoError(t, err)
	assert.Equal(t, "remind", req.Route())

	_, err = New(Slash, payload.Empty(), WithBot("glados"))
	assert.True(t, errors.Is(err, ErrMalformedRequest))
}

func TestRouteNameFixedAtConstruction(t *testing.T) {
	req, err := New(Menu, mustTree(t, `{"action_id":"one"}`))
	require.NoError(t, err)

	req.Payload().Set("action_id", "two")
	assert.Equal(t, "one", req.Name())
	assert.Equal(t, "two", req.Payload().String("action_id", ""))
}

func setupStore(t *testing.T) *interactions.Store {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return interactions.NewStore(database)
}

func TestLoadInteractionFromContainer(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	seed, err := store.NewSession(ctx)
	require.NoError(t, err)
	it := &interactions.Interaction{Bot: "glados", MessageChannel: "C1", MessageTS: "111.222"}
	require.NoError(t, store.Insert(ctx, seed, it))
	require.NoError(t, seed.Commit())

	req, err := New(Interaction, mustTree(t, `{
		"actions":[{"action_id":"ack"}],
		"container":{"channel_id":"C1","message_ts":"111.222"}
	}`), WithBot("glados"))
	require.NoError(t, err)

	require.NoError(t, req.SetStore(ctx, store))
	defer req.CloseSession()
	require.NoError(t, req.LoadInteraction(ctx))
	assert.True(t, req.HasInteraction())
	assert.Equal(t, it.ID, req.InteractionID())

	require.NoError(t, req.UpdateInteraction(ctx, map[string]any{"followup_action": "done"}))
	assert.Equal(t, "done", req.Interaction().FollowupAction)
}

func TestLoadInteractionWithoutContainer(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	req, err := New(Interaction, mustTree(t, `{"actions":[{"action_id":"ack"}]}`), WithBot("glados"))
	require.NoError(t, err)
	require.NoError(t, req.SetStore(ctx, store))
	defer req.CloseSession()

	require.NoError(t, req.LoadInteraction(ctx))
	assert.False(t, req.HasInteraction())
	assert.Equal(t, "", req.InteractionID())
}

func TestLoadInteractionRequiresSession(t *testing.T) {
	req, err := New(Interaction, mustTree(t, `{"actions":[{"action_id":"ack"}]}`), WithBot("glados"))
	require.NoError(t, err)
	err = req.LoadInteraction(context.Background())
	assert.True(t, errors.Is(err, interactions.ErrSessionInactive))
}

func TestNewInteractionIsPendingOnly(t *testing.T) {
	req, err := New(Send, payload.Empty(), WithRoute("send_message"), WithBot("glados"))
	require.NoError(t, err)

	it := req.NewInteraction(InteractionOptions{FollowupAction: "remind"})
	assert.Same(t, it, req.PendingInteraction())
	assert.Equal(t, "glados", it.Bot)
	assert.Empty(t, it.ID)
	assert.NotNil(t, it.Data)
	assert.True(t, req.AutoLink)

	// Without a store the interaction cannot be persisted.
	added, err := req.AddInteraction(context.Background(), it)
	assert.NoError(t, err)
	assert.Nil(t, added)
}
