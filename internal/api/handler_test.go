package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mr1hm/spot-safety/internal/broadcast"
	"github.com/mr1hm/spot-safety/internal/metrics"
	"github.com/mr1hm/spot-safety/internal/models"
	"github.com/mr1hm/spot-safety/internal/repository"
	"github.com/mr1hm/spot-safety/internal/safety"
)

type envelope struct {
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value"`
	Error   *safety.Error   `json:"error"`
}

type testServer struct {
	router      *gin.Engine
	store       *repository.MemoryStore
	broadcaster *broadcast.Broadcaster
}

// syncNotifier broadcasts inline so tests see events without a dispatcher.
type syncNotifier struct {
	b *broadcast.Broadcaster
}

func (n syncNotifier) Notify(ev models.Event) { n.b.Broadcast(ev) }

func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	store := repository.NewMemoryStore()
	b := broadcast.New(16)
	t.Cleanup(b.Close)

	svc := safety.NewService(store, store, store,
		safety.WithMetrics(metrics.New(reg)),
		safety.WithNotifier(syncNotifier{b}),
	)

	router := gin.New()
	NewHandler(svc, store, b, reg).RegisterRoutes(router)
	return &testServer{router: router, store: store, broadcaster: b}
}

func (s *testServer) do(t *testing.T, method, path, actor, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func decodeValue[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("failed to parse value: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := setupTestRouter(t)

	w, _ := s.do(t, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestMutationsRequireActor(t *testing.T) {
	s := setupTestRouter(t)

	w, env := s.do(t, "POST", "/api/spots/S1/alerts", "", `{"reason":"theft"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
	if env.Success || env.Error == nil || env.Error.Code != safety.CodeMissingActorID {
		t.Errorf("expected MissingActorId envelope, got %+v", env)
	}
}

func TestReportAlert(t *testing.T) {
	s := setupTestRouter(t)

	w, env := s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"THEFT","details":"bike stolen"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success, got %+v", env.Error)
	}
	alert := decodeValue[models.Alert](t, env)
	if alert.ReporterID != "alice" || alert.Reason != models.ReasonTheft || alert.Status != models.AlertStatusPending {
		t.Errorf("unexpected alert %+v", alert)
	}

	w, env = s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"theft"}`)
	if w.Code != http.StatusConflict || env.Error.Code != safety.CodeDuplicateReport {
		t.Errorf("expected 409 DuplicateReport, got %d %+v", w.Code, env.Error)
	}

	w, env = s.do(t, "POST", "/api/spots/S1/alerts", "bob", `{"reason":"aliens"}`)
	if w.Code != http.StatusBadRequest || env.Error.Code != safety.CodeInvalidReason {
		t.Errorf("expected 400 InvalidReason, got %d %+v", w.Code, env.Error)
	}

	w, env = s.do(t, "POST", "/api/spots/S1/alerts", "bob", `{"reason":`)
	if w.Code != http.StatusBadRequest || env.Error.Code != codeInvalidBody {
		t.Errorf("expected 400 InvalidBody, got %d %+v", w.Code, env.Error)
	}
}

func TestConfirmAlert_WithoutBodyTargetsLatestPending(t *testing.T) {
	s := setupTestRouter(t)

	_, env := s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"theft"}`)
	alert := decodeValue[models.Alert](t, env)

	w, env := s.do(t, "POST", "/api/spots/S1/confirmations", "bob", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	conf := decodeValue[safety.Confirmation](t, env)
	if conf.Alert.ID != alert.ID || conf.TotalConfirmations != 2 {
		t.Errorf("unexpected confirmation %+v", conf)
	}

	w, env = s.do(t, "POST", "/api/spots/S1/confirmations", "alice", `{"alertId":"`+alert.ID+`"}`)
	if w.Code != http.StatusConflict || env.Error.Code != safety.CodeCannotConfirmOwnReport {
		t.Errorf("expected 409 CannotConfirmOwnReport, got %d %+v", w.Code, env.Error)
	}
}

func TestModeration(t *testing.T) {
	s := setupTestRouter(t)

	_, env := s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"wild_animals"}`)
	alert := decodeValue[models.Alert](t, env)

	w, env := s.do(t, "POST", "/api/alerts/"+alert.ID+"/resolve", "mod", `{"resolution":"fence repaired"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resolved := decodeValue[models.Alert](t, env)
	if resolved.Status != models.AlertStatusResolved || resolved.ModerationNote != "fence repaired" {
		t.Errorf("unexpected alert %+v", resolved)
	}

	w, env = s.do(t, "POST", "/api/alerts/missing/dismiss", "mod", `{"reason":"spam"}`)
	if w.Code != http.StatusNotFound || env.Error.Code != safety.CodeAlertNotFound {
		t.Errorf("expected 404 AlertNotFound, got %d %+v", w.Code, env.Error)
	}

	w, env = s.do(t, "GET", "/api/spots/S1/alerts", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if alerts := decodeValue[[]models.Alert](t, env); len(alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(alerts))
	}
}

func TestProposalLifecycle(t *testing.T) {
	s := setupTestRouter(t)

	w, env := s.do(t, "POST", "/api/spots/S1/proposals", "alice", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	proposal := decodeValue[models.DeletionProposal](t, env)

	w, env = s.do(t, "POST", "/api/spots/S1/proposals", "bob", "")
	if w.Code != http.StatusConflict || env.Error.Code != safety.CodeAlreadyProposed {
		t.Errorf("expected 409 AlreadyProposed, got %d %+v", w.Code, env.Error)
	}

	w, env = s.do(t, "POST", "/api/proposals/"+proposal.ID+"/votes", "v0", `{"choice":"abstain"}`)
	if w.Code != http.StatusBadRequest || env.Error.Code != safety.CodeInvalidVote {
		t.Errorf("expected 400 InvalidVote, got %d %+v", w.Code, env.Error)
	}

	var last safety.VoteResult
	for _, voter := range []string{"v1", "v2", "v3", "v4", "v5"} {
		w, env = s.do(t, "POST", "/api/proposals/"+proposal.ID+"/votes", voter, `{"choice":"approve"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("vote by %s: expected status 200, got %d: %s", voter, w.Code, w.Body.String())
		}
		last = decodeValue[safety.VoteResult](t, env)
	}
	if !last.Resolved || last.Proposal.Status != models.ProposalStatusApproved {
		t.Errorf("expected approved proposal, got %+v", last.Proposal)
	}

	w, _ = s.do(t, "POST", "/api/proposals/"+proposal.ID+"/deleted", "catalog", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w, env = s.do(t, "GET", "/api/proposals?status=deleted", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if list := decodeValue[[]models.DeletionProposal](t, env); len(list) != 1 || list[0].ID != proposal.ID {
		t.Errorf("expected the deleted proposal, got %+v", list)
	}

	w, _ = s.do(t, "GET", "/api/proposals?status=bogus", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	w, env = s.do(t, "GET", "/api/proposals/nope", "", "")
	if w.Code != http.StatusNotFound || env.Error.Code != safety.CodeProposalNotFound {
		t.Errorf("expected 404 ProposalNotFound, got %d %+v", w.Code, env.Error)
	}
}

func TestSpots_GeoJSON(t *testing.T) {
	s := setupTestRouter(t)

	w, _ := s.do(t, "POST", "/api/spots", "catalog", `{"id":"S1","name":"Riverside","latitude":52.5,"longitude":13.4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	w, _ = s.do(t, "POST", "/api/spots", "catalog", `{"name":"no id"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"theft"}`)
	s.do(t, "POST", "/api/spots/S1/alerts", "bob", `{"reason":"assault"}`)

	w, _ = s.do(t, "GET", "/api/spots", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	var fc FeatureCollection
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %+v", fc)
	}
	f := fc.Features[0]
	if f.Properties["danger_level"] != "warning" {
		t.Errorf("expected danger_level warning, got %v", f.Properties["danger_level"])
	}
	if f.Geometry.Coordinates[0] != 13.4 || f.Geometry.Coordinates[1] != 52.5 {
		t.Errorf("expected [lon, lat], got %v", f.Geometry.Coordinates)
	}

	w, env := s.do(t, "GET", "/api/spots/S1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	spot := decodeValue[models.Spot](t, env)
	if spot.DangerLevel != models.DangerWarning || spot.Name != "Riverside" {
		t.Errorf("unexpected spot %+v", spot)
	}

	w, env = s.do(t, "GET", "/api/spots/S9", "", "")
	if w.Code != http.StatusNotFound || env.Error.Code != safety.CodeSpotNotFound {
		t.Errorf("expected 404 SpotNotFound, got %d %+v", w.Code, env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestRouter(t)
	s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"theft"}`)

	w, _ := s.do(t, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `spot_safety_alerts_reported_total{reason="theft"} 1`) {
		t.Errorf("expected reported counter in output, got:\n%s", w.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected [200 429], got %v", codes)
	}
}

func TestEventsStream(t *testing.T) {
	s := setupTestRouter(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/events?spot_id=S1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected content-type text/event-stream, got %s", ct)
	}

	s.do(t, "POST", "/api/spots/S2/alerts", "alice", `{"reason":"theft"}`)
	s.do(t, "POST", "/api/spots/S1/alerts", "alice", `{"reason":"assault"}`)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if strings.TrimSpace(line) != "event:"+string(models.EventAlertReported) {
		t.Errorf("expected alert.reported event, got %q", line)
	}
	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("failed to read event data: %v", err)
	}
	if !strings.Contains(data, `"spotId":"S1"`) {
		t.Errorf("expected only S1 events, got %q", data)
	}
}
