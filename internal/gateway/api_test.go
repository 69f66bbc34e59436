package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vendorlane/pulse/internal/auth"
	"github.com/vendorlane/pulse/internal/config"
	"github.com/vendorlane/pulse/internal/store"
	"github.com/vendorlane/pulse/pkg/models"
)

func newTestServer(t *testing.T, authService *auth.Service) (*Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	server, err := NewServer(Options{
		Config: config.Default(),
		Store:  st,
		Auth:   authService,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { server.Hub().Close() })
	return server, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, nil)
	rec := doJSON(t, server.Handler(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestInventoryStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.Handler()

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus string
		wantDays   float64
	}{
		{
			name:       "out of stock",
			body:       map[string]any{"current": 0, "reorder_point": 5, "average_daily_sales": 2},
			wantStatus: "out_of_stock",
			wantDays:   0,
		},
		{
			name:       "low stock",
			body:       map[string]any{"current": 4, "reorder_point": 5, "average_daily_sales": 2},
			wantStatus: "low_stock",
			wantDays:   2,
		},
		{
			name:       "zero velocity sentinel",
			body:       map[string]any{"current": 10, "reorder_point": 2},
			wantStatus: "in_stock",
			wantDays:   999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/status", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var got map[string]any
			decodeBody(t, rec, &got)
			if got["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", got["status"], tt.wantStatus)
			}
			if got["days_of_stock"] != tt.wantDays {
				t.Errorf("days_of_stock = %v, want %v", got["days_of_stock"], tt.wantDays)
			}
		})
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/status", map[string]any{"current": -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative quantity status = %d, want 400", rec.Code)
	}
}

func TestOrderEndpoints(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders/transitions?from=pending", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var transitions struct {
		Transitions []string `json:"transitions"`
		Terminal    bool     `json:"terminal"`
	}
	decodeBody(t, rec, &transitions)
	if transitions.Terminal {
		t.Error("pending reported as terminal")
	}
	found := false
	for _, s := range transitions.Transitions {
		if s == "confirmed" {
			found = true
		}
	}
	if !found {
		t.Errorf("transitions = %v, want confirmed included", transitions.Transitions)
	}

	// Forward moves may skip stages as long as the rank increases.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/validate",
		map[string]string{"from": "pending", "to": "shipped"})
	var verdict struct {
		Allowed bool `json:"allowed"`
	}
	decodeBody(t, rec, &verdict)
	if !verdict.Allowed {
		t.Error("pending->shipped rejected, want allowed")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/validate",
		map[string]string{"from": "shipped", "to": "confirmed"})
	decodeBody(t, rec, &verdict)
	if verdict.Allowed {
		t.Error("shipped->confirmed allowed, want rejected")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/transitions?from=teleported", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d, want 400", rec.Code)
	}
}

func TestRiskAssessEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/risk/assess", map[string]any{
		"company_name": "No Web Presence LLC",
		"team_size":    1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var assessment struct {
		Score int    `json:"score"`
		Level string `json:"level"`
	}
	decodeBody(t, rec, &assessment)
	if assessment.Score == 0 {
		t.Error("empty application scored zero risk")
	}
	if assessment.Level == "" {
		t.Error("assessment carries no level")
	}
}

func TestConversationFlowOverHTTP(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/conversations",
		map[string]string{"vendor_id": "vendor-1", "customer_id": "customer-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var conv models.Conversation
	decodeBody(t, rec, &conv)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages",
		map[string]string{"sender_id": "customer-1", "content": "hello"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post message status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", nil)
	var history struct {
		Messages []models.Message `json:"messages"`
	}
	decodeBody(t, rec, &history)
	if len(history.Messages) != 1 || history.Messages[0].Content != "hello" {
		t.Errorf("history = %+v", history.Messages)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/unread?user=vendor-1", nil)
	var unread struct {
		Unread int `json:"unread"`
	}
	decodeBody(t, rec, &unread)
	if unread.Unread != 1 {
		t.Errorf("unread = %d, want 1", unread.Unread)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/conversations/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing conversation status = %d, want 404", rec.Code)
	}
}

func TestApplicationSLAEndpoint(t *testing.T) {
	server, st := newTestServer(t, nil)

	app := &models.Application{
		CompanyName: "Calm Waters Ltd",
		Priority:    models.PriorityExpedited,
		SubmittedAt: time.Now().Add(-30 * time.Hour),
	}
	if err := st.CreateApplication(context.Background(), app); err != nil {
		t.Fatalf("CreateApplication() error = %v", err)
	}

	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/v1/applications/"+app.ID+"/sla", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sla struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &sla)
	// 30h elapsed against a 24h expedited window.
	if sla.Status != "overdue" {
		t.Errorf("sla status = %q, want overdue", sla.Status)
	}
}

func TestOnboardingProgressEndpoint(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/onboarding/progress",
		map[string]any{"completed": []string{"profile", "catalog"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var progress struct {
		Percent           int  `json:"percent"`
		Complete          bool `json:"complete"`
		CompletedRequired int  `json:"completed_required"`
	}
	decodeBody(t, rec, &progress)
	if progress.CompletedRequired != 2 || progress.Complete {
		t.Errorf("progress = %+v", progress)
	}
	// 2 of 5 required default steps.
	if progress.Percent != 40 {
		t.Errorf("percent = %d, want 40", progress.Percent)
	}
}

func TestVisibilityEndpoints(t *testing.T) {
	server, _ := newTestServer(t, nil)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/visibility/score",
		map[string]float64{"impressions": 100, "engagement": 100, "conversion": 100, "quality": 100})
	var score struct {
		Score float64 `json:"score"`
	}
	decodeBody(t, rec, &score)
	if score.Score != 100 {
		t.Errorf("score = %v, want 100", score.Score)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/visibility/rank", map[string]any{
		"vendors": map[string]any{
			"vendor-low":  map[string]float64{"impressions": 10},
			"vendor-high": map[string]float64{"impressions": 90, "engagement": 90, "conversion": 90, "quality": 90},
		},
	})
	var ranking struct {
		Ranking []struct {
			VendorID string `json:"vendor_id"`
		} `json:"ranking"`
	}
	decodeBody(t, rec, &ranking)
	if len(ranking.Ranking) != 2 || ranking.Ranking[0].VendorID != "vendor-high" {
		t.Errorf("ranking = %+v", ranking.Ranking)
	}
}

func TestAPIRequiresAuthWhenEnabled(t *testing.T) {
	authService := auth.NewService(auth.Config{JWTSecret: "test-secret", TokenExpiry: time.Hour})
	server, _ := newTestServer(t, authService)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/conversations", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	// Health and metrics stay open for probes and scrapers.
	rec = doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	token, err := authService.GenerateJWT(&models.User{ID: "vendor-1", Type: models.UserTypeVendor})
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
