package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vendorlane/pulse/internal/auth"
	"github.com/vendorlane/pulse/internal/inventory"
	"github.com/vendorlane/pulse/internal/onboard"
	"github.com/vendorlane/pulse/internal/orders"
	"github.com/vendorlane/pulse/internal/realtime"
	"github.com/vendorlane/pulse/internal/review"
	"github.com/vendorlane/pulse/internal/risk"
	"github.com/vendorlane/pulse/internal/store"
	"github.com/vendorlane/pulse/internal/visibility"
	"github.com/vendorlane/pulse/pkg/models"
)

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /conversations", s.handleListConversations)
	mux.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /conversations/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /conversations/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /conversations/{id}/read", s.handleMarkRead)
	mux.HandleFunc("GET /conversations/{id}/unread", s.handleUnreadCount)

	mux.HandleFunc("POST /applications", s.handleCreateApplication)
	mux.HandleFunc("GET /applications/pending", s.handlePendingApplications)
	mux.HandleFunc("GET /applications/{id}", s.handleGetApplication)
	mux.HandleFunc("GET /applications/{id}/sla", s.handleApplicationSLA)
	mux.HandleFunc("GET /applications/{id}/risk", s.handleApplicationRisk)

	mux.HandleFunc("POST /risk/assess", s.handleRiskAssess)
	mux.HandleFunc("POST /inventory/status", s.handleInventoryStatus)
	mux.HandleFunc("GET /orders/transitions", s.handleOrderTransitions)
	mux.HandleFunc("POST /orders/validate", s.handleOrderValidate)
	mux.HandleFunc("GET /onboarding/steps", s.handleOnboardingSteps)
	mux.HandleFunc("POST /onboarding/progress", s.handleOnboardingProgress)
	mux.HandleFunc("POST /visibility/score", s.handleVisibilityScore)
	mux.HandleFunc("POST /visibility/rank", s.handleVisibilityRank)
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Error: message})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, store.ErrApplicationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("store operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var conv models.Conversation
	if !readJSON(w, r, &conv) {
		return
	}
	if conv.VendorID == "" || conv.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "vendor_id and customer_id are required")
		return
	}
	if err := s.store.CreateConversation(r.Context(), &conv); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		if user, ok := auth.UserFromContext(r.Context()); ok {
			participant = user.ID
		}
	}
	opts := store.ListOptions{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	convs, err := s.store.ListConversations(r.Context(), participant, opts)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.History(r.Context(), r.PathValue("id"), queryInt(r, "limit"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handlePostMessage is the HTTP fallback for posting when a websocket is not
// available. Delivery to subscribers still goes through the hub.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var msg models.Message
	if !readJSON(w, r, &msg) {
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if user, ok := auth.UserFromContext(r.Context()); ok {
		msg.SenderID = user.ID
		msg.SenderType = user.Type
	}

	conversationID := r.PathValue("id")
	if err := s.store.AppendMessage(r.Context(), conversationID, &msg); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.hub.Broadcast(conversationID, realtime.FrameMessageReceived, msg)
	if conv, err := s.store.GetConversation(r.Context(), conversationID); err == nil {
		s.hub.Broadcast(conversationID, realtime.FrameConversationUpdated, conv)
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	readerID := r.URL.Query().Get("user")
	if readerID == "" {
		if user, ok := auth.UserFromContext(r.Context()); ok {
			readerID = user.ID
		}
	}
	if readerID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	if err := s.store.MarkRead(r.Context(), r.PathValue("id"), readerID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		if user, ok := auth.UserFromContext(r.Context()); ok {
			userID = user.ID
		}
	}
	count, err := s.store.UnreadCount(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if !readJSON(w, r, &app) {
		return
	}
	if app.CompanyName == "" {
		writeError(w, http.StatusBadRequest, "company_name is required")
		return
	}
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = time.Now()
	}
	if err := s.store.CreateApplication(r.Context(), &app); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handlePendingApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ListPendingApplications(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleApplicationSLA(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"application_id": app.ID,
		"priority":       app.Priority,
		"deadline":       review.Deadline(app.SubmittedAt, app.Priority),
		"status":         review.StatusFor(app, time.Now()),
	})
}

func (s *Server) handleApplicationRisk(w http.ResponseWriter, r *http.Request) {
	app, err := s.store.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, risk.Evaluate(app))
}

func (s *Server) handleRiskAssess(w http.ResponseWriter, r *http.Request) {
	var app models.Application
	if !readJSON(w, r, &app) {
		return
	}
	writeJSON(w, http.StatusOK, risk.Evaluate(&app))
}

func (s *Server) handleInventoryStatus(w http.ResponseWriter, r *http.Request) {
	var record inventory.Record
	if !readJSON(w, r, &record) {
		return
	}
	if record.Current < 0 || record.Maximum < 0 || record.ReorderPoint < 0 {
		writeError(w, http.StatusBadRequest, "quantities must not be negative")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":       record.ProductID,
		"status":           record.Status(),
		"days_of_stock":    record.DaysOfStock(),
		"restock_quantity": record.RestockQuantity(),
	})
}

func (s *Server) handleOrderTransitions(w http.ResponseWriter, r *http.Request) {
	status, err := orders.Parse(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":        status,
		"transitions": orders.AvailableTransitions(status),
		"terminal":    status.IsTerminal(),
	})
}

func (s *Server) handleOrderValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	from, err := orders.Parse(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := orders.Parse(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":    from,
		"to":      to,
		"allowed": orders.CanTransition(from, to),
	})
}

func (s *Server) handleOnboardingSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"steps": onboard.DefaultSteps()})
}

func (s *Server) handleOnboardingProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps     []onboard.Step `json:"steps"`
		Completed []string       `json:"completed"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	steps := req.Steps
	if len(steps) == 0 {
		steps = onboard.DefaultSteps()
	}
	steps = onboard.Apply(steps, req.Completed...)
	writeJSON(w, http.StatusOK, onboard.Calculate(steps))
}

func (s *Server) handleVisibilityScore(w http.ResponseWriter, r *http.Request) {
	var in visibility.Inputs
	if !readJSON(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"score": visibility.Score(in)})
}

func (s *Server) handleVisibilityRank(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vendors map[string]visibility.Inputs `json:"vendors"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ranking": visibility.Rank(req.Vendors)})
}

func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
