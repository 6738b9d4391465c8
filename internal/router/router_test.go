package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/glados/internal/payload"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/response"
)

func textHandler(s string) Handler {
	return func(context.Context, *request.Request) (response.Response, error) {
		return response.Text(s), nil
	}
}

type fakeSource struct {
	name   string
	routes []Route
}

func (f fakeSource) Name() string    { return f.name }
func (f fakeSource) Routes() []Route { return f.routes }

func TestRegisterDuplicateLeavesTableUnchanged(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(request.Send, "glados_send", textHandler("first")))

	err := r.Register(request.Send, "glados_send", textHandler("second"))
	require.True(t, errors.Is(err, ErrRouteExists))
	assert.Equal(t, 1, r.Len())

	req, err := request.New(request.Send, payload.Empty(), request.WithRoute("send"), request.WithBot("glados"))
	require.NoError(t, err)
	resp, err := r.Exec(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.TextValue())
}

func TestSameNameDifferentCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(request.Send, "x", textHandler("send")))
	require.NoError(t, r.Register(request.Menu, "x", textHandler("menu")))
	assert.Equal(t, 2, r.Len())
}

func TestExecNotFound(t *testing.T) {
	r := New()
	called := false
	require.NoError(t, r.Register(request.Menu, "other", func(context.Context, *request.Request) (response.Response, error) {
		called = true
		return response.Response{}, nil
	}))

	req, err := request.New(request.Menu, payload.FromMap(map[string]any{"action_id": "missing"}))
	require.NoError(t, err)

	_, err = r.Exec(context.Background(), req)
	assert.True(t, errors.Is(err, ErrRouteNotFound))
	assert.False(t, called)
	assert.Equal(t, 1, r.Len())
}

func TestBindIsAtomic(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(request.Slash, "glados_security", textHandler("taken")))

	src := fakeSource{name: "plugin", routes: []Route{
		{Category: request.Send, Name: "glados_send", Handler: textHandler("a")},
		{Category: request.Slash, Name: "glados_security", Handler: textHandler("b")},
	}}
	err := r.Bind(src)
	require.True(t, errors.Is(err, ErrRouteExists))
	assert.Equal(t, 1, r.Len())

	_, err = r.Lookup(request.Send, "glados_send")
	assert.True(t, errors.Is(err, ErrRouteNotFound))
}

func TestBindRejectsDuplicatesWithinSource(t *testing.T) {
	r := New()
	src := fakeSource{name: "plugin", routes: []Route{
		{Category: request.Menu, Name: "m", Handler: textHandler("a")},
		{Category: request.Menu, Name: "m", Handler: textHandler("b")},
	}}
	assert.True(t, errors.Is(r.Bind(src), ErrRouteExists))
	assert.Equal(t, 0, r.Len())
}

func TestRoutesSorted(t *testing.T) {
	r := New()
	require.NoError(t, r.Bind(fakeSource{name: "p", routes: []Route{
		{Category: request.Menu, Name: "b", Handler: textHandler("")},
		{Category: request.Send, Name: "z", Handler: textHandler("")},
		{Category: request.Menu, Name: "a", Handler: textHandler("")},
	}}))

	got := r.Routes()
	require.Len(t, got, 3)
	assert.Equal(t, "SendMessage/z", got[0].String())
	assert.Equal(t, "Menu/a", got[1].String())
	assert.Equal(t, "Menu/b", got[2].String())
}
