package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"parking-fines-service/internal/config"
	"parking-fines-service/internal/detector"
	"parking-fines-service/internal/domain/fines"
	"parking-fines-service/internal/extraction"
	"parking-fines-service/internal/imaging"
	"parking-fines-service/internal/repository"
	"parking-fines-service/internal/service"
	"parking-fines-service/internal/zone"
)

const testSecret = "test-secret"

type testEnv struct {
	router *gin.Engine
	store  *service.FineStore
	zones  *zone.Holder
}

func newTestEnv(t *testing.T, secret string, det detector.Detector) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		App:  config.AppConfig{Name: "fines", Env: "development"},
		HTTP: config.HTTPConfig{MaxUploadBytes: 1 << 20},
		Auth: config.AuthConfig{JWTSecret: secret},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	store := service.NewFineStore(repository.NewMemoryBlobStore(), zerolog.Nop())
	zones := zone.NewHolder(fines.Zone{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 0, Y: 100}})
	h := NewHandler(store, zones, det, cfg, zerolog.Nop())

	return testEnv{router: NewRouter(cfg, h, zerolog.Nop()), store: store, zones: zones}
}

func (e testEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	recs := []fines.FineRecord{
		{ID: "f1", Plate: "KZ111", CreatedAt: base, Evidence: []byte{0xFF, 0xD8, 0xFF}, Status: fines.StatusUnpaid},
		{ID: "f2", Plate: "UNKNOWN", CreatedAt: base.Add(time.Minute), Status: fines.StatusUnpaid},
	}
	for _, r := range recs {
		if err := e.store.Append(ctx, r); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

type listResponse struct {
	Data  []fineView `json:"data"`
	Total int        `json:"total"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestListFines(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)

	w := env.do(http.MethodGet, "/api/v1/fines", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[listResponse](t, w)
	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Fatalf("got %+v", resp)
	}
	if resp.Data[0].ID != "f2" || resp.Data[1].ID != "f1" {
		t.Errorf("order: got %s, %s", resp.Data[0].ID, resp.Data[1].ID)
	}
	if resp.Data[0].HasEvidence || !resp.Data[1].HasEvidence {
		t.Errorf("has_evidence flags wrong: %+v", resp.Data)
	}
	if resp.Data[1].EvidenceURL != "/api/v1/fines/f1/evidence" {
		t.Errorf("evidence url: got %q", resp.Data[1].EvidenceURL)
	}
	if strings.Contains(w.Body.String(), `"evidence":`) {
		t.Error("list must not inline evidence bytes")
	}
}

func TestListFines_FilterAndPaging(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)
	env.store.MarkPaid(context.Background(), "f1")

	resp := decode[listResponse](t, env.do(http.MethodGet, "/api/v1/fines?status=paid", nil, nil))
	if resp.Total != 1 || resp.Data[0].ID != "f1" {
		t.Errorf("status filter: got %+v", resp)
	}

	resp = decode[listResponse](t, env.do(http.MethodGet, "/api/v1/fines?offset=1&limit=5", nil, nil))
	if resp.Total != 2 || len(resp.Data) != 1 || resp.Data[0].ID != "f1" {
		t.Errorf("paging: got %+v", resp)
	}

	resp = decode[listResponse](t, env.do(http.MethodGet, "/api/v1/fines?offset=10", nil, nil))
	if len(resp.Data) != 0 {
		t.Errorf("offset past end: got %+v", resp)
	}
}

func TestExportFines(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)

	w := env.do(http.MethodGet, "/api/v1/fines/export", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="fines.csv"`) {
		t.Errorf("content disposition: got %q", cd)
	}
	lines := strings.Split(w.Body.String(), "\n")
	if len(lines) != 3 || lines[0] != "id,plate,createdAt,status" {
		t.Fatalf("csv: got %q", w.Body.String())
	}
	if lines[1] != `"f2","UNKNOWN","2026-03-01T10:01:00.000Z","unpaid"` {
		t.Errorf("row: got %s", lines[1])
	}
}

func TestGetEvidence(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)

	w := env.do(http.MethodGet, "/api/v1/fines/f1/evidence", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.Equal(w.Body.Bytes(), []byte{0xFF, 0xD8, 0xFF}) {
		t.Errorf("body: got %v", w.Body.Bytes())
	}

	if w := env.do(http.MethodGet, "/api/v1/fines/f2/evidence", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("no evidence: got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/v1/fines/zzz/evidence", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown fine: got %d", w.Code)
	}
}

func TestUpdateFine(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)

	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{"plate uppercased", "f2", `{"plate":" kz 777 "}`, http.StatusOK},
		{"status", "f1", `{"status":"paid"}`, http.StatusOK},
		{"bad status", "f1", `{"status":"void"}`, http.StatusBadRequest},
		{"empty patch", "f1", `{}`, http.StatusBadRequest},
		{"malformed", "f1", `{`, http.StatusBadRequest},
		{"unknown id", "nope", `{"plate":"X"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPatch, "/api/v1/fines/"+tt.id, []byte(tt.body), nil)
			if w.Code != tt.status {
				t.Errorf("status: got %d, want %d, body %s", w.Code, tt.status, w.Body.String())
			}
		})
	}

	got, _ := env.store.Get(context.Background(), "f2")
	if got.Plate != "KZ 777" || got.Status != fines.StatusUnpaid {
		t.Errorf("f2 after edit: %+v", got)
	}
	got, _ = env.store.Get(context.Background(), "f1")
	if got.Status != fines.StatusPaid || got.Plate != "KZ111" {
		t.Errorf("f1 after edit: %+v", got)
	}
}

func TestPayFine(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.seed(t)

	w := env.do(http.MethodPost, "/api/v1/fines/f2/pay", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	resp := decode[struct {
		Data fineView `json:"data"`
	}](t, w)
	if resp.Data.Status != fines.StatusPaid {
		t.Errorf("status: got %q", resp.Data.Status)
	}

	if w := env.do(http.MethodPost, "/api/v1/fines/missing/pay", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: got %d", w.Code)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	env.seed(t)

	if w := env.do(http.MethodGet, "/api/v1/fines", nil, nil); w.Code != http.StatusOK {
		t.Errorf("public read: got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/v1/fines/f1/pay", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d", w.Code)
	}

	forged, _ := IssueToken("other-secret", "mallory", time.Hour, time.Now())
	if w := env.do(http.MethodPost, "/api/v1/fines/f1/pay", nil, map[string]string{"Authorization": "Bearer " + forged}); w.Code != http.StatusUnauthorized {
		t.Errorf("forged token: got %d", w.Code)
	}

	expired, _ := IssueToken(testSecret, "alice", time.Minute, time.Now().Add(-time.Hour))
	if w := env.do(http.MethodPost, "/api/v1/fines/f1/pay", nil, map[string]string{"Authorization": "Bearer " + expired}); w.Code != http.StatusUnauthorized {
		t.Errorf("expired token: got %d", w.Code)
	}

	valid, err := IssueToken(testSecret, "alice", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if w := env.do(http.MethodPost, "/api/v1/fines/f1/pay", nil, map[string]string{"Authorization": "Bearer " + valid}); w.Code != http.StatusOK {
		t.Errorf("valid token: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "alice", time.Hour, time.Now()); err == nil {
		t.Error("expected error without a secret")
	}
}

func TestZone(t *testing.T) {
	env := newTestEnv(t, "", nil)

	w := env.do(http.MethodPut, "/api/v1/zone", []byte(`{"points":[{"x":1,"y":1},{"x":2,"y":2}]}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("two points: got %d", w.Code)
	}

	w = env.do(http.MethodPut, "/api/v1/zone", []byte(`{"points":[{"x":0,"y":0},{"x":50,"y":0},{"x":0,"y":50}]}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("triangle: got %d, body %s", w.Code, w.Body.String())
	}
	if z := env.zones.Snapshot(); len(z) != 3 || z[1].X != 50 {
		t.Errorf("holder: got %v", z)
	}

	resp := decode[struct {
		Data struct {
			Points []fines.Point `json:"points"`
			Active bool          `json:"active"`
		} `json:"data"`
	}](t, env.do(http.MethodGet, "/api/v1/zone", nil, nil))
	if !resp.Data.Active || len(resp.Data.Points) != 3 {
		t.Errorf("get zone: got %+v", resp.Data)
	}

	w = env.do(http.MethodPut, "/api/v1/zone", []byte(`{"points":[]}`), nil)
	if w.Code != http.StatusOK || env.zones.Snapshot().Valid() {
		t.Errorf("clearing zone: got %d, zone %v", w.Code, env.zones.Snapshot())
	}
}

func uploadRequest(t *testing.T, img image.Image) *http.Request {
	t.Helper()
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "still.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDetectStill(t *testing.T) {
	det := detector.Func(func(ctx context.Context, frame image.Image) ([]fines.Detection, error) {
		return []fines.Detection{
			{Category: "car", Confidence: 0.9, Box: fines.BoundingBox{X: 10, Y: 10, Width: 20, Height: 20}},
			{Category: "truck", Confidence: 0.8, Box: fines.BoundingBox{X: 110, Y: 110, Width: 20, Height: 20}},
			{Category: "dog", Confidence: 0.8, Box: fines.BoundingBox{X: 10, Y: 10, Width: 5, Height: 5}},
		}, nil
	})
	env := newTestEnv(t, "", det)

	img := image.NewRGBA(image.Rect(0, 0, 160, 160))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.Set(0, 0, color.Black)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, img))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	resp := decode[struct {
		Data struct {
			Events     []fines.IntrusionEvent `json:"events"`
			Intrusions int                    `json:"intrusions"`
			Annotated  string                 `json:"annotated"`
		} `json:"data"`
	}](t, w)
	if len(resp.Data.Events) != 2 || resp.Data.Intrusions != 1 {
		t.Errorf("events: got %d events, %d intrusions", len(resp.Data.Events), resp.Data.Intrusions)
	}
	if !strings.HasPrefix(resp.Data.Annotated, "data:image/png;base64,") {
		t.Errorf("annotated image missing")
	}

	list, _ := env.store.List(context.Background())
	if len(list) != 0 {
		t.Errorf("still upload created %d fines", len(list))
	}
}

func TestDetectStill_Errors(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, uploadRequest(t, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("no detector: got %d", w.Code)
	}

	env = newTestEnv(t, "", detector.Func(func(ctx context.Context, frame image.Image) ([]fines.Detection, error) {
		return nil, nil
	}))
	if w := env.do(http.MethodPost, "/api/v1/detect", []byte(`{}`), nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing file: got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, "", nil)
	w := env.do(http.MethodOptions, "/api/v1/fines/f1/pay", nil, map[string]string{
		"Origin":                        "http://operator.local",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin: got %q", got)
	}
}

func TestStreamChanges(t *testing.T) {
	env := newTestEnv(t, "", nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/fines/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type: got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("stream closed: %v", err)
			}
			if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event:"); ok {
				return strings.TrimSpace(name)
			}
		}
	}

	if ev := nextEvent(); ev != "ready" {
		t.Fatalf("first event: got %q, want ready", ev)
	}

	env.store.Append(context.Background(), fines.FineRecord{ID: "live", Plate: "AB12"})
	if ev := nextEvent(); ev != string(service.ChangeAppended) {
		t.Errorf("got %q, want %q", ev, service.ChangeAppended)
	}

	env.store.MarkPaid(context.Background(), "live")
	if ev := nextEvent(); ev != string(service.ChangeUpdated) {
		t.Errorf("got %q, want %q", ev, service.ChangeUpdated)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for env.store.NotifierStats().Subscribers != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := env.store.NotifierStats().Subscribers; n != 0 {
		t.Errorf("subscriber leaked after disconnect: %d", n)
	}
}

type fakeTrigger struct {
	stats extraction.Stats
	busy  bool
}

func (f fakeTrigger) Stats() extraction.Stats { return f.stats }
func (f fakeTrigger) Busy() bool { return f.busy }

func TestHealth_ReportsNotifierAndTrigger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		App:  config.AppConfig{Name: "fines", Env: "development"},
		Auth: config.AuthConfig{JWTSecret: testSecret},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	store := service.NewFineStore(repository.NewMemoryBlobStore(), zerolog.Nop())
	if err := store.Subscribe("viewer", make(chan service.ChangeEvent, 1)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	trig := fakeTrigger{stats: extraction.Stats{Triggered: 3, Dropped: 2, Failed: 1}, busy: true}
	h := NewHandler(store, zone.NewHolder(nil), nil, cfg, zerolog.Nop(), WithTrigger(trig))
	router := NewRouter(cfg, h, zerolog.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var body struct {
		Status   string                `json:"status"`
		Notifier service.NotifierStats `json:"notifier"`
		Trigger  *struct {
			Busy  bool             `json:"busy"`
			Stats extraction.Stats `json:"stats"`
		} `json:"trigger"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status field: got %q", body.Status)
	}
	if body.Notifier.Subscribers != 1 {
		t.Errorf("subscribers: got %d, want 1", body.Notifier.Subscribers)
	}
	if body.Trigger == nil {
		t.Fatal("expected trigger section")
	}
	if !body.Trigger.Busy || body.Trigger.Stats != trig.stats {
		t.Errorf("trigger: got %+v", *body.Trigger)
	}
}

func TestHealth_OmitsTriggerWhenPipelineOff(t *testing.T) {
	env := newTestEnv(t, testSecret, nil)
	rec := env.do(http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["trigger"]; ok {
		t.Errorf("unexpected trigger section: %v", body)
	}
	if _, ok := body["notifier"]; !ok {
		t.Errorf("missing notifier section: %v", body)
	}
}
