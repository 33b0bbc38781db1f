// Package transport wires the service layer onto chi-routed HTTP/JSON for
// unary methods and a gorilla/websocket upgrade for the ReceiveEvents
// stream.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"limit/internal/apperr"
	"limit/internal/authsvc"
	"limit/internal/eventsvc"
	mw "limit/internal/middleware"
	"limit/internal/services"
	"limit/internal/store"
)

// NewRouter builds the full HTTP surface: public auth and bootstrap
// registration endpoints, and the authenticated event endpoints.
func NewRouter(svc *services.Services) http.Handler {
	authSvc := authsvc.New(svc)
	eventSvc := eventsvc.New(svc)
	h := &handler{svc: svc, auth: authSvc, events: eventSvc}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)
	r.Use(requestLogger(svc))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/v1/users", h.CreateUser)
	r.Post("/v1/auth/request", h.RequestAuth)
	r.Post("/v1/auth/do", h.DoAuth)

	r.Group(func(r chi.Router) {
		r.Use(mw.Auth(svc.Tokens))

		r.Post("/v1/events/send", h.SendEvent)
		r.Post("/v1/events/sync", h.Synchronize)
		r.Get("/v1/events/receive", h.ReceiveEvents)
	})

	return r
}

func requestLogger(svc *services.Services) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			svc.Logger.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

type handler struct {
	svc    *services.Services
	auth   *authsvc.Service
	events *eventsvc.Service
}

// --- request/response shapes ---

type createUserRequest struct {
	UserID        string `json:"user_id"`
	PubKey        string `json:"pubkey"`
	JWTExpiration int64  `json:"jwt_expiration_seconds"`
}

type createUserResponse struct {
	Passcode string `json:"passcode"`
}

type requestAuthRequest struct {
	UserID string `json:"user_id"`
}

type requestAuthResponse struct {
	Passcode string `json:"passcode"`
}

type doAuthRequest struct {
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id"`
	Validated string `json:"validated"`
}

type doAuthResponse struct {
	Token string `json:"token"`
}

type synchronizeRequest struct {
	FromID        string `json:"from_id,omitempty"`
	FromTimestamp *int64 `json:"from_timestamp,omitempty"`
	ToID          string `json:"to_id,omitempty"`
	ToTimestamp   *int64 `json:"to_timestamp,omitempty"`
	Count         int    `json:"count"`
}

type synchronizeResponse struct {
	Events []store.Event `json:"events"`
}

// --- handlers ---

// CreateUser is the bootstrap registration endpoint: without it no user
// could ever exist to authenticate.
func (h *handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.PubKey == "" {
		writeError(w, apperr.New(apperr.InvalidArgument, "user_id and pubkey are required"))
		return
	}
	if req.JWTExpiration <= 0 {
		req.JWTExpiration = 3600
	}

	passcode, err := h.auth.Bootstrap(r.Context(), req.UserID, req.PubKey, req.JWTExpiration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createUserResponse{Passcode: passcode})
}

func (h *handler) RequestAuth(w http.ResponseWriter, r *http.Request) {
	var req requestAuthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	passcode, err := h.auth.RequestAuth(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requestAuthResponse{Passcode: passcode})
}

func (h *handler) DoAuth(w http.ResponseWriter, r *http.Request) {
	var req doAuthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	token, err := h.auth.DoAuth(r.Context(), req.UserID, req.DeviceID, req.Validated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doAuthResponse{Token: token})
}

func (h *handler) SendEvent(w http.ResponseWriter, r *http.Request) {
	identity, ok := mw.Identity(r)
	if !ok {
		writeError(w, apperr.New(apperr.Unauthenticated, "no session identity"))
		return
	}

	var evt store.Event
	if !decodeJSON(w, r, &evt) {
		return
	}

	sent, err := h.events.SendEvent(r.Context(), identity.UserID, evt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

func (h *handler) Synchronize(w http.ResponseWriter, r *http.Request) {
	identity, ok := mw.Identity(r)
	if !ok {
		writeError(w, apperr.New(apperr.Unauthenticated, "no session identity"))
		return
	}

	var req synchronizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	from, err := parseBound(req.FromID, req.FromTimestamp)
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "no from"))
		return
	}
	to, err := parseBound(req.ToID, req.ToTimestamp)
	if err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "no to"))
		return
	}

	events, err := h.events.Synchronize(r.Context(), identity.UserID, from, to, req.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, synchronizeResponse{Events: events})
}

func parseBound(id string, ts *int64) (store.RangeBound, error) {
	switch {
	case id != "":
		return store.FromID(id), nil
	case ts != nil:
		return store.FromTimestamp(*ts), nil
	default:
		return store.RangeBound{}, errors.New("missing bound")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ReceiveEvents upgrades to a WebSocket and streams every event published to
// the caller's subscribed channels until the connection closes.
func (h *handler) ReceiveEvents(w http.ResponseWriter, r *http.Request) {
	identity, ok := mw.Identity(r)
	if !ok {
		writeError(w, apperr.New(apperr.Unauthenticated, "no session identity"))
		return
	}

	sub, err := h.events.ReceiveEvents(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer h.svc.Hub.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.svc.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, open := <-sub.Messages():
			if !open {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "malformed request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": apperr.PublicMessage(err)})
}

