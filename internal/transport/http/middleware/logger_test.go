package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func serveLogged(t *testing.T, status int, header map[string]string) *logrus.Entry {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, hook := test.NewNullLogger()

	engine := gin.New()
	engine.Use(RequestID(), Logger(log))
	engine.GET("/v1/schedules", func(c *gin.Context) {
		c.Status(status)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/schedules?limit=5", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	engine.ServeHTTP(httptest.NewRecorder(), req)

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	return entries[0]
}

func TestLogger_TagsActorAndRequestID(t *testing.T) {
	entry := serveLogged(t, http.StatusOK, map[string]string{
		"X-User-ID":    "ops@example.com",
		"X-Request-ID": "req-123",
	})

	if entry.Level != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", entry.Level)
	}
	if got := entry.Data["user"]; got != "ops@example.com" {
		t.Fatalf("user = %v, want ops@example.com", got)
	}
	if got := entry.Data["request_id"]; got != "req-123" {
		t.Fatalf("request_id = %v, want req-123", got)
	}
	if got := entry.Data["path"]; got != "/v1/schedules?limit=5" {
		t.Fatalf("path = %v", got)
	}
}

func TestLogger_AnonymousClientErrorWarns(t *testing.T) {
	entry := serveLogged(t, http.StatusNotFound, nil)

	if entry.Level != logrus.WarnLevel {
		t.Fatalf("level = %v, want warn", entry.Level)
	}
	if got := entry.Data["user"]; got != "anonymous" {
		t.Fatalf("user = %v, want anonymous", got)
	}
	if got, ok := entry.Data["request_id"].(string); !ok || got == "" {
		t.Fatalf("request_id = %v, want generated id", entry.Data["request_id"])
	}
}
