package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/glados/internal/bots"
	"github.com/ziadkadry99/glados/internal/payload"
	"github.com/ziadkadry99/glados/internal/request"
	"github.com/ziadkadry99/glados/internal/router"
)

const maxBodyBytes = 1 << 20

// errBadBody marks payloads that could not be decoded.
var errBadBody = errors.New("invalid request body")

// readBody returns the raw body, which signature verification needs
// byte-for-byte.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return body, nil
}

func verification(r *http.Request, body []byte) *request.Verification {
	return &request.Verification{
		Body:      body,
		Timestamp: r.Header.Get("X-Slack-Request-Timestamp"),
		Signature: r.Header.Get("X-Slack-Signature"),
	}
}

func parseJSON(body []byte) (payload.Tree, error) {
	tree, err := payload.Parse(body)
	if err != nil {
		return payload.Tree{}, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return tree, nil
}

func parseForm(body []byte) (url.Values, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return values, nil
}

// parseFormPayload decodes the JSON carried in the "payload" form field of
// interactive requests.
func parseFormPayload(body []byte) (payload.Tree, error) {
	values, err := parseForm(body)
	if err != nil {
		return payload.Tree{}, err
	}
	raw := values.Get("payload")
	if raw == "" {
		return payload.Tree{}, fmt.Errorf("%w: missing payload field", errBadBody)
	}
	return parseJSON([]byte(raw))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := parseJSON(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, request.Send, tree,
		request.WithBot(chi.URLParam(r, "bot")),
		request.WithRoute(chi.URLParam(r, "route")),
		request.WithVerification(verification(r, body)),
	)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := parseJSON(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if tree.String("type", "") == "url_verification" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": tree.String("challenge", "")})
		return
	}
	// Skip the bot's own messages to avoid loops.
	if tree.Has("event.bot_id") {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.dispatch(w, r, request.Events, tree,
		request.WithBot(chi.URLParam(r, "bot")),
		request.WithVerification(verification(r, body)),
	)
}

func (s *Server) handleSlash(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	values, err := parseForm(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, request.Slash, payload.FromForm(values),
		request.WithBot(chi.URLParam(r, "bot")),
		request.WithRoute(chi.URLParam(r, "route")),
		request.WithVerification(verification(r, body)),
	)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := parseFormPayload(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, request.Interaction, tree,
		request.WithBot(chi.URLParam(r, "bot")),
		request.WithVerification(verification(r, body)),
	)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := parseFormPayload(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, request.Menu, tree, request.WithVerification(verification(r, body)))
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	tree, err := parseJSON(body)
	if err != nil {
		writeError(w, err)
		return
	}
	s.dispatch(w, r, request.Callback, tree, request.WithRoute(chi.URLParam(r, "route")))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, category request.Category, tree payload.Tree, opts ...request.Option) {
	req, err := request.New(category, tree, opts...)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("category", category.String()).Str("route", req.Route()).Msg("dispatch failed")
		writeError(w, err)
		return
	}

	body, contentType := resp.Body()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

type routeInfo struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes := s.dispatcher.Router().Routes()
	out := make([]routeInfo, len(routes))
	for i, rt := range routes {
		out[i] = routeInfo{Category: rt.Category.String(), Name: rt.Name}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps dispatch errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrRouteNotFound), errors.Is(err, bots.ErrBotNotFound):
		return http.StatusNotFound
	case errors.Is(err, bots.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, request.ErrMalformedRequest), errors.Is(err, errBadBody):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
