package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/smartdesk-ai/go-ticket-backend/internal/config"
	"github.com/smartdesk-ai/go-ticket-backend/internal/domain"
	"github.com/smartdesk-ai/go-ticket-backend/internal/draft"
	"github.com/smartdesk-ai/go-ticket-backend/internal/http/middleware"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// schema so handlers don't explode on list endpoints
	if err := db.AutoMigrate(&domain.Ticket{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath:    base,
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "basics")
	RegisterRoutes(r, Deps{DB: db}, testConfig("/"))

	// /healthz works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (DELETE /healthz)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/healthz", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /healthz expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	db := newTestDB(t, "corsorigins")

	RegisterRoutes(r, Deps{DB: db}, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	db := newTestDB(t, "smoke")
	RegisterRoutes(r, Deps{DB: db}, cfg)

	// Any request goes through the middleware stack
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /healthz = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

// Full lifecycle against the wired router with degraded AI ports (nil
// classifier and drafter): intake falls back to default triage labels,
// reply generation reports the offline placeholder, and closing the ticket
// leaves the stored suggestion untouched.
func TestTicketLifecycle_DegradedPipeline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "lifecycle")
	RegisterRoutes(r, Deps{DB: db}, testConfig("/"))

	do := func(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		var rd io.Reader
		if body != "" {
			rd = bytes.NewBufferString(body)
		}
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, rd)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		r.ServeHTTP(w, req)
		out := map[string]any{}
		if w.Body.Len() > 0 {
			_ = json.Unmarshal(w.Body.Bytes(), &out)
		}
		return w, out
	}

	// 1) Submit
	w, created := do(http.MethodPost, "/tickets",
		`{"subject":"VPN Error","description":"I cannot connect to the VPN since this morning."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /tickets = %d body=%s", w.Code, w.Body.String())
	}
	if created["category"] != "General" || created["priority"] != "Medium" {
		t.Fatalf("expected fallback triage labels, got %v/%v", created["category"], created["priority"])
	}
	if created["status"] != domain.StatusOpen {
		t.Fatalf("new ticket should be open, got %v", created["status"])
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("missing ticket id in %v", created)
	}

	// 2) Validation failures are 422
	w, _ = do(http.MethodPost, "/tickets", `{"subject":"ab","description":"long enough description"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short subject expected 422, got %d", w.Code)
	}

	// 3) Track
	w, got := do(http.MethodGet, "/tickets/"+id, "")
	if w.Code != http.StatusOK || got["id"] != id {
		t.Fatalf("GET /tickets/%s = %d body=%s", id, w.Code, w.Body.String())
	}

	// 4) Draft a reply: drafter is nil → offline placeholder, persisted
	w, reply := do(http.MethodPost, "/tickets/"+id+"/reply", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST reply = %d body=%s", w.Code, w.Body.String())
	}
	if reply["ai_reply"] != draft.OfflineMessage {
		t.Fatalf("expected offline placeholder, got %v", reply["ai_reply"])
	}
	w, got = do(http.MethodGet, "/tickets/"+id, "")
	if w.Code != http.StatusOK || got["suggested_reply"] != draft.OfflineMessage {
		t.Fatalf("suggested_reply not persisted: %v", got["suggested_reply"])
	}

	// 5) Close with a solution
	w, upd := do(http.MethodPatch, "/tickets/"+id,
		`{"status":"closed","solution":"Reset the VPN certificate."}`)
	if w.Code != http.StatusOK || upd["message"] != "Ticket updated successfully" {
		t.Fatalf("PATCH close = %d body=%s", w.Code, w.Body.String())
	}

	// 6) Identical resubmission is a no-op
	w, upd = do(http.MethodPatch, "/tickets/"+id,
		`{"status":"closed","solution":"Reset the VPN certificate."}`)
	if w.Code != http.StatusOK || upd["message"] != "No changes needed" {
		t.Fatalf("PATCH replay = %d body=%s", w.Code, w.Body.String())
	}

	// Closing must not clobber the stored suggestion.
	w, got = do(http.MethodGet, "/tickets/"+id, "")
	if w.Code != http.StatusOK || got["suggested_reply"] != draft.OfflineMessage {
		t.Fatalf("suggested_reply changed by close: %v", got["suggested_reply"])
	}
	if got["status"] != domain.StatusClosed {
		t.Fatalf("ticket should be closed, got %v", got["status"])
	}

	// 7) Unknown id is 404, malformed id is 400
	w, _ = do(http.MethodGet, "/tickets/6a2f1f64-0000-4000-8000-000000000000", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown id expected 404, got %d", w.Code)
	}
	w, _ = do(http.MethodGet, "/tickets/not-a-uuid", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed id expected 400, got %d", w.Code)
	}

	// 8) Stats reflect the closed ticket
	w, stats := do(http.MethodGet, "/tickets/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /tickets/stats = %d", w.Code)
	}
	if stats["closed"].(float64) < 1 {
		t.Fatalf("stats missing closed ticket: %v", stats)
	}
}

func TestRegisterRoutes_IdempotencyReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "idem")
	RegisterRoutes(r, Deps{DB: db}, testConfig("/"))

	body := `{"subject":"Printer down","description":"The office printer rejects all jobs."}`

	post := func(key string) (*httptest.ResponseRecorder, map[string]any) {
		t.Helper()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/tickets", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		out := map[string]any{}
		_ = json.Unmarshal(w.Body.Bytes(), &out)
		return w, out
	}

	w1, first := post("submit-1")
	if w1.Code != http.StatusOK {
		t.Fatalf("first POST = %d body=%s", w1.Code, w1.Body.String())
	}
	w2, second := post("submit-1")
	if w2.Code != http.StatusOK {
		t.Fatalf("retry POST = %d body=%s", w2.Code, w2.Body.String())
	}
	if first["id"] != second["id"] {
		t.Fatalf("retry created a new ticket: %v vs %v", first["id"], second["id"])
	}

	var n int64
	if err := db.Model(&domain.Ticket{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 stored ticket, got %d", n)
	}
}

func TestRegisterRoutes_IdempotencyCallback_ErrorBranch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t, "idemerr")

	// Wire routes first...
	RegisterRoutes(r, Deps{DB: db}, testConfig("/"))

	// ...then force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// Now any repo.GetIdempotency call should error → drives (err != nil) branch.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/healthz", bytes.NewBufferString("{}"))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)

	// 405 is expected for POST /healthz; goal is to exercise the middleware branch.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
