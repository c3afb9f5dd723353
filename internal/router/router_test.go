package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"go.uber.org/zap"

	"github.com/incubator-platform/support-chat/internal/auth"
	"github.com/incubator-platform/support-chat/internal/gateway"
	"github.com/incubator-platform/support-chat/internal/handler"
	"github.com/incubator-platform/support-chat/internal/notification"
	"github.com/incubator-platform/support-chat/internal/repository"
	"github.com/incubator-platform/support-chat/internal/service"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.JWTVerifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	svc := service.NewSupportService(store, store)
	verifier := auth.NewJWTVerifier("router-secret")
	ws := gateway.NewServer(svc, verifier, gateway.NewHub(zap.NewNop()))
	log := zap.NewNop()
	sched := notification.NewScheduler(notification.NewPreferenceStore("UTC"),
		notification.LogMailer{Log: log}, notification.LogPusher{Log: log})
	return New(Handlers{
		Health:       handler.NewHealthHandler(nil),
		Ticket:       handler.NewTicketHandler(svc, ws),
		Notification: handler.NewNotificationHandler(sched),
		Gateway:      ws,
		Verifier:     verifier,
		Log:          log,
	}), verifier
}

func TestRoutes(t *testing.T) {
	h, verifier := newTestRouter(t)
	userToken, err := verifier.Sign(auth.Identity{UserID: "u1", Role: auth.RoleUser}, time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: paths.PathHealth, want: http.StatusOK},
		{name: "ready without probe", method: http.MethodGet, path: paths.PathReady, want: http.StatusOK},
		{name: "openapi document", method: http.MethodGet, path: paths.PathSwagger + "/openapi.json", want: http.StatusOK},
		{name: "swagger redirect", method: http.MethodGet, path: paths.PathSwagger, want: http.StatusFound},
		{name: "api needs token", method: http.MethodGet, path: "/api/v1/tickets", want: http.StatusUnauthorized},
		{name: "api with token", method: http.MethodGet, path: "/api/v1/tickets", token: userToken, want: http.StatusOK},
		{name: "users cannot schedule sessions", method: http.MethodPost, path: "/api/v1/sessions/s1/notifications", token: userToken, want: http.StatusForbidden},
		{name: "pending is admin only", method: http.MethodGet, path: "/api/v1/notifications/pending", token: userToken, want: http.StatusForbidden},
		{name: "websocket needs token", method: http.MethodGet, path: PathWebSocket, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s: got %d, want %d (body %s)", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestOpenAPIDocumentIsJSON(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, paths.PathSwagger+"/openapi.json", nil))
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("openapi.json: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Error("openapi.json has no paths")
	}
}
