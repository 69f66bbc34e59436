package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vendorlane/pulse/internal/auth"
	"github.com/vendorlane/pulse/internal/observability"
	"github.com/vendorlane/pulse/internal/review"
	"github.com/vendorlane/pulse/internal/store"
	"github.com/vendorlane/pulse/pkg/models"
)

// Options tunes hub connection handling. Zero values fall back to defaults.
type Options struct {
	// HeartbeatInterval is how often idle peers are pinged.
	HeartbeatInterval time.Duration

	// PongTimeoutIntervals is the number of missed intervals after which a
	// silent peer is dropped.
	PongTimeoutIntervals int

	WriteTimeout   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.PongTimeoutIntervals <= 0 {
		o.PongTimeoutIntervals = 3
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

// Hub owns all websocket sessions and routes conversation events to their
// subscribers. It also receives review SLA breaches and pushes them to
// connected admins.
type Hub struct {
	store    store.Store
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	sessions    map[string]*session
	subscribers map[string]map[*session]struct{}
}

// NewHub builds a hub on top of the given store.
func NewHub(st store.Store, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:   st,
		logger:  logger,
		metrics: metrics,
		opts:    opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		sessions:    make(map[string]*session),
		subscribers: make(map[string]map[*session]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the session until the peer goes
// away. Authentication happens in middleware; the session picks up whatever
// user the request context carries.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	user, _ := auth.UserFromContext(r.Context())
	newSession(h, conn, user).run(r.Context())
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.metrics.ConnectionOpened()
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	released := 0
	for conversationID, subs := range h.subscribers {
		if _, ok := subs[s]; ok {
			delete(subs, s)
			released++
			if len(subs) == 0 {
				delete(h.subscribers, conversationID)
			}
		}
	}
	h.mu.Unlock()

	h.metrics.ConnectionClosed()
	if h.metrics != nil {
		h.metrics.Subscriptions.Sub(float64(released))
	}
}

func (h *Hub) subscribe(s *session, conversationID string) {
	h.mu.Lock()
	subs, ok := h.subscribers[conversationID]
	if !ok {
		subs = make(map[*session]struct{})
		h.subscribers[conversationID] = subs
	}
	_, already := subs[s]
	subs[s] = struct{}{}
	h.mu.Unlock()

	if !already && h.metrics != nil {
		h.metrics.Subscriptions.Inc()
	}
}

func (h *Hub) unsubscribe(s *session, conversationID string) {
	h.mu.Lock()
	subs, ok := h.subscribers[conversationID]
	var had bool
	if ok {
		_, had = subs[s]
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.subscribers, conversationID)
		}
	}
	h.mu.Unlock()

	if had && h.metrics != nil {
		h.metrics.Subscriptions.Dec()
	}
}

// Broadcast pushes a frame to every subscriber of the conversation.
func (h *Hub) Broadcast(conversationID, frameType string, payload any) {
	h.broadcast(conversationID, frameType, payload, nil)
}

// broadcast fans a frame out to the conversation's subscribers, skipping the
// given session. Chat messages skip their sender; the peer already has the
// content it just sent.
func (h *Hub) broadcast(conversationID, frameType string, payload any, skip *session) {
	data, err := EncodeFrame(frameType, payload)
	if err != nil {
		h.logger.Error("broadcast encode failed", "frame", frameType, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.subscribers[conversationID]))
	for s := range h.subscribers[conversationID] {
		if s == skip {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.enqueue(data) {
			h.metrics.FrameSent(frameType)
		}
	}
	h.metrics.BroadcastSent(frameType)
}

// NotifySLABreach implements review.Notifier by pushing the breach to all
// connected admin sessions.
func (h *Hub) NotifySLABreach(ctx context.Context, app *models.Application, status review.SLAStatus) {
	data, err := EncodeFrame(FrameReviewSLA, map[string]any{
		"applicationId": app.ID,
		"companyName":   app.CompanyName,
		"priority":      app.Priority,
		"status":        status,
		"deadline":      review.Deadline(app.SubmittedAt, app.Priority),
	})
	if err != nil {
		h.logger.Error("sla notification encode failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*session, 0)
	for _, s := range h.sessions {
		if s.user != nil && s.user.Type == models.UserTypeAdmin {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.enqueue(data) {
			h.metrics.FrameSent(FrameReviewSLA)
		}
	}
	h.metrics.SLANotified(string(status))
	h.logger.Info("sla breach notified",
		"application_id", app.ID, "status", status, "admins", len(targets))
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// SubscriberCount reports how many sessions follow a conversation.
func (h *Hub) SubscriberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[conversationID])
}

// Close tears down every live session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
