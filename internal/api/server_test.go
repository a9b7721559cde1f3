package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/BroWo1/factcheck-backend/internal/api/handlers"
	"github.com/BroWo1/factcheck-backend/internal/notify"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/internal/storage/sqlite"
	"github.com/BroWo1/factcheck-backend/internal/worker"
	"github.com/BroWo1/factcheck-backend/pkg/config"
)

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Submit(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	app       *fiber.App
	store     *sqlite.Client
	queue     *fakeQueue
	uploadDir string
}

func newTestServer(t *testing.T, checks map[string]handlers.Pinger) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.NewClient(filepath.Join(dir, "factcheck.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.InitSchema(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ts := &testServer{
		store:     store,
		queue:     &fakeQueue{},
		uploadDir: filepath.Join(dir, "uploads"),
	}
	ts.app = NewServer(Deps{
		Server:  config.ServerConfig{RateLimitPerMinute: 1000, BodyLimit: 10 << 20},
		Storage: config.StorageConfig{UploadDir: ts.uploadDir, MaxImageBytes: 1 << 20},
		Store:   store,
		Queue:   ts.queue,
		Hub:     notify.NewHub(8),
		Checks:  checks,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := ts.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp.StatusCode, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) create(t *testing.T, body string) string {
	t.Helper()
	code, resp := ts.do(t, jsonRequest("POST", "/api/v1/fact-check", body))
	if code != fiber.StatusCreated {
		t.Fatalf("create status = %d, body = %v", code, resp)
	}
	return resp["session_id"].(string)
}

func TestCreateQueuesSession(t *testing.T) {
	ts := newTestServer(t, nil)

	code, resp := ts.do(t, jsonRequest("POST", "/api/v1/fact-check",
		`{"user_input": "<b>Vaccines</b> contain   microchips", "use_web_search": true}`))
	if code != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", code, resp)
	}
	id := resp["session_id"].(string)
	if resp["status"] != "pending" {
		t.Errorf("status field = %v", resp["status"])
	}
	if len(ts.queue.ids) != 1 || ts.queue.ids[0] != id {
		t.Errorf("queued = %v, want [%s]", ts.queue.ids, id)
	}

	s, err := ts.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if s.Input != "Vaccines contain microchips" || s.Variant != models.VariantSearchAugmented {
		t.Errorf("stored session = %+v", s)
	}
}

func TestCreateWithFullQueueRemovesSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.queue.err = worker.ErrQueueFull

	code, _ := ts.do(t, jsonRequest("POST", "/api/v1/fact-check", `{"user_input": "claim"}`))
	if code != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}

	sessions, err := ts.store.ListSessions(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions left behind", len(sessions))
	}
}

func TestCreateMultipartWithImage(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("user_input", "This photo shows the moon landing")
	w.WriteField("mode", "fact_check")
	part, _ := w.CreateFormFile("image", "photo.png")
	part.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	w.Close()

	req := httptest.NewRequest("POST", "/api/v1/fact-check", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	code, resp := ts.do(t, req)
	if code != fiber.StatusCreated {
		t.Fatalf("status = %d, body = %v", code, resp)
	}

	s, err := ts.store.GetSession(context.Background(), resp["session_id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(s.ImagePath) != ts.uploadDir || filepath.Ext(s.ImagePath) != ".png" {
		t.Errorf("ImagePath = %q", s.ImagePath)
	}
	if _, err := os.Stat(s.ImagePath); err != nil {
		t.Errorf("image not saved: %v", err)
	}
}

func TestCreateRejectsNonImageUpload(t *testing.T) {
	ts := newTestServer(t, nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("user_input", "claim")
	part, _ := w.CreateFormFile("image", "notes.txt")
	part.Write([]byte("just some text"))
	w.Close()

	req := httptest.NewRequest("POST", "/api/v1/fact-check", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	code, resp := ts.do(t, req)
	if code != fiber.StatusBadRequest || resp["field"] != "image" {
		t.Errorf("status = %d, body = %v", code, resp)
	}
	if len(ts.queue.ids) != 0 {
		t.Error("session queued despite bad image")
	}
}

func TestStatusAndSteps(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.create(t, `{"user_input": "claim"}`)

	code, view := ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check/"+id+"/status", nil))
	if code != fiber.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if view["expected_steps"] != float64(5) || view["progress_percentage"] != float64(0) {
		t.Errorf("view = %v", view)
	}

	code, steps := ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check/"+id+"/steps", nil))
	if code != fiber.StatusOK || len(steps["steps"].([]any)) != 0 {
		t.Errorf("steps = %d %v", code, steps)
	}

	code, _ = ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check/missing/status", nil))
	if code != fiber.StatusNotFound {
		t.Errorf("unknown session status code = %d, want 404", code)
	}
}

func TestResultsRequireCompletion(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	id := ts.create(t, `{"user_input": "claim"}`)

	code, body := ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check/"+id+"/results", nil))
	if code != fiber.StatusBadRequest || body["status"] != "pending" {
		t.Fatalf("results before completion = %d %v", code, body)
	}

	if err := ts.store.TransitionSession(ctx, id, models.SessionPending, models.SessionAnalyzing); err != nil {
		t.Fatal(err)
	}
	confidence := 0.8
	now := time.Now()
	err := ts.store.FinishSession(ctx, &models.Session{
		ID: id, Status: models.SessionCompleted, Verdict: "likely",
		Confidence: &confidence, Summary: "Mostly right.", CompletedAt: &now,
	})
	if err != nil {
		t.Fatal(err)
	}

	code, body = ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check/"+id+"/results", nil))
	if code != fiber.StatusOK {
		t.Fatalf("results status = %d %v", code, body)
	}
	session := body["session"].(map[string]any)
	if session["verdict"] != "likely" || session["confidence_score"] != 0.8 {
		t.Errorf("session = %v", session)
	}
	if _, ok := body["sources"].([]any); !ok {
		t.Errorf("sources = %v, want an array", body["sources"])
	}
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	running := ts.create(t, `{"user_input": "running claim"}`)
	if err := ts.store.TransitionSession(ctx, running, models.SessionPending, models.SessionAnalyzing); err != nil {
		t.Fatal(err)
	}
	if code, _ := ts.do(t, httptest.NewRequest("DELETE", "/api/v1/fact-check/"+running, nil)); code != fiber.StatusConflict {
		t.Errorf("delete analyzing = %d, want 409", code)
	}

	idle := ts.create(t, `{"user_input": "idle claim"}`)
	if code, _ := ts.do(t, httptest.NewRequest("DELETE", "/api/v1/fact-check/"+idle, nil)); code != fiber.StatusNoContent {
		t.Errorf("delete pending = %d, want 204", code)
	}
	if _, err := ts.store.GetSession(ctx, idle); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetSession after delete error = %v", err)
	}
	if code, _ := ts.do(t, httptest.NewRequest("DELETE", "/api/v1/fact-check/"+idle, nil)); code != fiber.StatusNotFound {
		t.Errorf("second delete = %d, want 404", code)
	}
}

func TestListSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, `{"user_input": "one"}`)
	ts.create(t, `{"user_input": "two"}`)

	code, body := ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check?limit=1", nil))
	if code != fiber.StatusOK || body["count"] != float64(1) {
		t.Errorf("list = %d %v", code, body)
	}
	if code, _ := ts.do(t, httptest.NewRequest("GET", "/api/v1/fact-check?limit=abc", nil)); code != fiber.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, map[string]handlers.Pinger{
		"sqlite": pingFunc(func(context.Context) error { return nil }),
		"redis":  pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	if code, body := ts.do(t, httptest.NewRequest("GET", "/api/v1/health", nil)); code != fiber.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", code, body)
	}

	code, body := ts.do(t, httptest.NewRequest("GET", "/api/v1/ready", nil))
	if code != fiber.StatusServiceUnavailable {
		t.Fatalf("ready = %d, want 503", code)
	}
	checks := body["checks"].(map[string]any)
	if checks["sqlite"] != "ok" || checks["redis"] != "connection refused" {
		t.Errorf("checks = %v", checks)
	}
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.app.Test(httptest.NewRequest("GET", "/ws/fact-check/abc", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := ts.app.Test(httptest.NewRequest("GET", "/api/v1/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("headers = %v", resp.Header)
	}
}
