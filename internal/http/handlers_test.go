package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinical-intake/internal/cache"
	ierrors "clinical-intake/internal/errors"
	"clinical-intake/internal/intake"
	"clinical-intake/internal/log"
	"clinical-intake/internal/metrics"
	"clinical-intake/pkg"
)

type fakeNarrator struct {
	mu   sync.Mutex
	err  error
	reqs []pkg.StoryRequest
}

func (f *fakeNarrator) Generate(_ context.Context, req pkg.StoryRequest) (*pkg.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if req.Structured.IsEmpty() && len(req.Answers) == 0 {
		return nil, ierrors.New(ierrors.ErrCodeRecordEmpty, "no patient data available")
	}
	dept := req.Department
	if dept == "" {
		dept = "general"
	}
	return &pkg.Story{Story: "narrative for " + strings.Join(req.Structured.Complaints(), ", "), Department: dept, GeneratedAt: time.Now(), Model: "fake"}, nil
}

type fakePublisher struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakePublisher) Notify(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	srv      *Server
	narrator *fakeNarrator
	records  *cache.MemoryRecords
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, m := metrics.NewRegistry()
	f := &fixture{narrator: &fakeNarrator{}, records: cache.NewMemoryRecords(), metrics: m}
	f.srv = NewServer(&Server{
		Sessions: cache.NewMemoryStore(),
		Records:  f.records,
		Narrator: f.narrator,
		Metrics:  m,
		Registry: reg,
		Logger:   log.Discard(),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) newSession(t *testing.T, dept string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/sessions", pkg.CreateSessionRequest{Department: dept})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := decode[pkg.SessionView](t, rec)
	require.NotEmpty(t, v.Session.ID)
	return v.Session.ID
}

func (f *fixture) step(t *testing.T, id, action string, body any) pkg.SessionView {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/sessions/"+id+"/"+action, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[pkg.SessionView](t, rec)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCatalog(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/catalog?department=pediatric", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[pkg.CatalogResponse](t, rec)
	assert.Equal(t, "Fever", resp.Suggested[0])
	assert.Contains(t, resp.Suggested, "Seizure")
	assert.Equal(t, intake.DefaultCatalog().Names(), resp.Known)
}

func TestIntakeFlow(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "Pediatric")

	v := f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Fever"})
	assert.Equal(t, []string{"Fever"}, v.Session.Complaints)
	assert.Nil(t, v.Current)

	v = f.step(t, id, "start", nil)
	require.NotNil(t, v.Current)
	assert.Equal(t, "complaint-header:Fever", v.Current.Key)
	assert.Equal(t, intake.InProgress, v.Session.State)

	f.step(t, id, "answer", pkg.AnswerRequest{Value: "since Monday"})
	f.step(t, id, "advance", nil)
	f.step(t, id, "answer", pkg.AnswerRequest{Value: "39.5"})
	for i := 0; i < 4; i++ {
		f.step(t, id, "advance", nil)
	}
	v = f.step(t, id, "answer", pkg.AnswerRequest{Value: "Chills"})
	assert.Equal(t, "fever_consequences", v.Current.Key)
	require.NotNil(t, v.Default)
	assert.Equal(t, intake.Multi("Chills"), *v.Default)
	v = f.step(t, id, "advance", nil)
	assert.Equal(t, intake.Completed, v.Session.State)
	assert.Equal(t, 100.0, v.Progress)

	rec := f.do(t, http.MethodPost, "/api/sessions/"+id+"/finalize", pkg.FinalizeRequest{BasicInfo: &pkg.BasicInfo{Name: "Ada", Age: "4"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fin := decode[pkg.FinalizeResponse](t, rec)
	require.NotEmpty(t, fin.RecordID)
	assert.Equal(t, intake.GroupedRecord{
		"Fever": {
			"pc_note":            intake.Single("since Monday"),
			"fever_character":    intake.Single("39.5"),
			"fever_consequences": intake.Multi("Chills"),
		},
	}, fin.Structured)

	stored, err := f.records.GetRecord(context.Background(), fin.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "pediatric", stored.Department)
	assert.Equal(t, "Ada", stored.BasicInfo.Name)

	rec = f.do(t, http.MethodPost, "/api/records/"+fin.RecordID+"/story", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	story := decode[pkg.Story](t, rec)
	assert.Equal(t, "narrative for Fever", story.Story)
	assert.Equal(t, fin.RecordID, story.RecordID)
	assert.Equal(t, "pediatric", f.narrator.reqs[0].Department)
	assert.Equal(t, "Ada", f.narrator.reqs[0].BasicInfo.Name)

	rec = f.do(t, http.MethodGet, "/api/records/"+fin.RecordID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rv := decode[pkg.RecordView](t, rec)
	require.NotNil(t, rv.Narrative)
	assert.Equal(t, "narrative for Fever", rv.Narrative.Story)

	rec = f.do(t, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]pkg.Record](t, rec), 1)
}

func TestRetreatFromFirstQuestionReturnsToSelection(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Cough"})
	f.step(t, id, "start", nil)

	v := f.step(t, id, "retreat", nil)
	assert.Equal(t, intake.NotStarted, v.Session.State)
	assert.Nil(t, v.Current)
	assert.Equal(t, []string{"Cough"}, v.Session.Complaints)
}

func TestDeselectComplaintWithSlash(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Dizziness/vertigo"})
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Fever"})

	rec := f.do(t, http.MethodDelete, "/api/sessions/"+id+"/complaints/Dizziness%2Fvertigo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Fever"}, decode[pkg.SessionView](t, rec).Session.Complaints)
}

func TestRawAnswersFinalizeUnderGeneral(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")
	f.step(t, id, "raw", pkg.RawAnswerRequest{Key: "history", Value: "cough for a week"})

	rec := f.do(t, http.MethodPost, "/api/sessions/"+id+"/finalize", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	fin := decode[pkg.FinalizeResponse](t, rec)
	assert.Equal(t, intake.GroupedRecord{
		"General": {"history": intake.Single("cough for a week")},
	}, fin.Structured)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"start with no complaints", http.MethodPost, "/api/sessions/" + id + "/start", nil, http.StatusBadRequest, "INTAKE-001"},
		{"advance before start", http.MethodPost, "/api/sessions/" + id + "/advance", nil, http.StatusConflict, "INTAKE-003"},
		{"answer before start", http.MethodPost, "/api/sessions/" + id + "/answer", pkg.AnswerRequest{Value: "x"}, http.StatusConflict, "INTAKE-003"},
		{"blank complaint", http.MethodPost, "/api/sessions/" + id + "/complaints", pkg.ComplaintRequest{Name: " "}, http.StatusBadRequest, "INTAKE-001"},
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound, "INTAKE-004"},
		{"unknown record", http.MethodGet, "/api/records/nope", nil, http.StatusNotFound, "STORE-001"},
		{"story for unknown record", http.MethodPost, "/api/records/nope/story", nil, http.StatusNotFound, "STORE-001"},
		{"empty stateless record", http.MethodPost, "/api/generate-story", map[string]any{"structured": map[string]any{}}, http.StatusBadRequest, "GEN-003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, rec).Code)
		})
	}
}

func TestKeyCollisionOnStart(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Back pain"})
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "back  pain"})

	rec := f.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "INTAKE-002", body.Code)
	assert.NotEmpty(t, body.Suggestions)

	// The failed start left the session untouched.
	rec = f.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, intake.NotStarted, decode[pkg.SessionView](t, rec).Session.State)
}

func TestCustomComplaintShadowingCatalogKeys(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "cardiology")
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "cp"})
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Chest pain"})

	rec := f.do(t, http.MethodPost, "/api/sessions/"+id+"/start", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "INTAKE-002", body.Code)
	require.Len(t, body.Suggestions, 1)
	assert.Contains(t, body.Suggestions[0], `custom complaint "cp"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code ierrors.ErrorCode
		want int
	}{
		{ierrors.ErrCodeInvalidQueue, http.StatusBadRequest},
		{ierrors.ErrCodeKeyCollision, http.StatusUnprocessableEntity},
		{ierrors.ErrCodeOutOfRangeStep, http.StatusConflict},
		{ierrors.ErrCodeSessionNotFound, http.StatusNotFound},
		{ierrors.ErrCodeRecordNotFound, http.StatusNotFound},
		{ierrors.ErrCodeRecordEmpty, http.StatusBadRequest},
		{ierrors.ErrCodeGenerationFailed, http.StatusBadGateway},
		{ierrors.ErrCodeGenerationTimedOut, http.StatusGatewayTimeout},
		{ierrors.ErrCodeCatalogInvalid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.code))
		})
	}
}

func TestSessionLocksAreReleased(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.do(t, http.MethodPost, "/api/sessions/"+id+"/raw", pkg.RawAnswerRequest{Key: "history", Value: "cough"})
		}()
	}
	wg.Wait()

	rec := f.do(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	f.srv.locksMu.Lock()
	defer f.srv.locksMu.Unlock()
	assert.Empty(t, f.srv.locks)
}

func TestDepartmentIsNormalized(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "Pediatrics")

	rec := f.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pediatric", decode[pkg.SessionView](t, rec).Session.Department)

	rec = f.do(t, http.MethodGet, "/api/catalog?department=obgyn", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Abdominal pain", decode[pkg.CatalogResponse](t, rec).Suggested[0])
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/complaints", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateStoryStateless(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/generate-story", map[string]any{
		"structured": map[string]any{"Cough": map[string]any{"cough_consequences": []string{"Wheeze"}}},
		"department": "internal-medicine",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	story := decode[pkg.Story](t, rec)
	assert.Equal(t, "internal-medicine", story.Department)
	assert.Equal(t, intake.Multi("Wheeze"), f.narrator.reqs[0].Structured["Cough"]["cough_consequences"])

	rec = f.do(t, http.MethodPost, "/api/generate-story", map[string]any{"department": "general"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerationFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	rec := &pkg.Record{SessionID: "s", Department: "cardiology", Structured: intake.GroupedRecord{"Chest pain": {}}}
	require.NoError(t, f.records.CreateRecord(context.Background(), rec))

	f.narrator.err = ierrors.New(ierrors.ErrCodeGenerationTimedOut, "narrative generation timed out")
	resp := f.do(t, http.MethodPost, "/api/records/"+rec.ID+"/story", nil)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Code)

	f.narrator.err = ierrors.New(ierrors.ErrCodeGenerationFailed, "narrative generation failed")
	resp = f.do(t, http.MethodPost, "/api/records/"+rec.ID+"/story", nil)
	assert.Equal(t, http.StatusBadGateway, resp.Code)

	n, err := f.records.LatestNarrative(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, n, "no partial narrative stored")

	f.narrator.err = nil
	resp = f.do(t, http.MethodPost, "/api/records/"+rec.ID+"/story", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, f.narrator.reqs, 3)
	assert.Equal(t, f.narrator.reqs[0].Structured, f.narrator.reqs[2].Structured)
}

func TestStoryPublishesEvent(t *testing.T) {
	f := newFixture(t)
	pub := &fakePublisher{}
	f.srv.Publisher = pub

	rec := &pkg.Record{SessionID: "s", Structured: intake.GroupedRecord{"Headache": {}}}
	require.NoError(t, f.records.CreateRecord(context.Background(), rec))

	resp := f.do(t, http.MethodPost, "/api/records/"+rec.ID+"/story", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{rec.ID}, pub.ids)
}

func TestStoryStream(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stories/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	// The subscription is registered right after the greeting is flushed.
	require.Eventually(t, func() bool {
		f.srv.Hub.mu.Lock()
		defer f.srv.Hub.mu.Unlock()
		return len(f.srv.Hub.subs) == 1
	}, time.Second, 10*time.Millisecond)
	f.srv.Hub.Broadcast("rec-7")

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	assert.Equal(t, "event: story_ready", lines[0])
	assert.Equal(t, `data: {"record_id":"rec-7"}`, lines[1])
}

func TestHubPump(t *testing.T) {
	h := NewHub()
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	src := make(chan string, 1)
	src <- "rec-1"
	close(src)
	h.Pump(context.Background(), src)

	select {
	case id := <-events:
		assert.Equal(t, "rec-1", id)
	default:
		t.Fatal("event not delivered")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t, "cardiology")
	f.step(t, id, "complaints", pkg.ComplaintRequest{Name: "Chest pain"})
	f.step(t, id, "start", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `intake_sessions_started_total{department="cardiology"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/api/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
