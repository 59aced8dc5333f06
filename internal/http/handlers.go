package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"clinical-intake/internal/intake"
	"clinical-intake/internal/log"
	"clinical-intake/internal/metrics"
	"clinical-intake/pkg"
)

// SessionStore persists in-progress intake sessions.
type SessionStore interface {
	Save(ctx context.Context, sess *intake.Session) error
	Get(ctx context.Context, id string) (*intake.Session, error)
	Delete(ctx context.Context, id string) error
}

// RecordStore persists finalized records and their narratives.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *pkg.Record) error
	GetRecord(ctx context.Context, id string) (*pkg.Record, error)
	ListRecords(ctx context.Context, limit int) ([]pkg.Record, error)
	SaveNarrative(ctx context.Context, recordID string, story *pkg.Story) (*pkg.Narrative, error)
	LatestNarrative(ctx context.Context, recordID string) (*pkg.Narrative, error)
}

// Narrator writes a narrative for a grouped record.
type Narrator interface {
	Generate(ctx context.Context, req pkg.StoryRequest) (*pkg.Story, error)
}

// Publisher announces a saved narrative to other instances. When nil the
// server broadcasts to its own hub only.
type Publisher interface {
	Notify(ctx context.Context, recordID string) error
}

// Server bundles together the dependencies required by HTTP handlers. It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	Sessions  SessionStore
	Records   RecordStore
	Narrator  Narrator
	Publisher Publisher
	Hub       *Hub
	Catalog   *intake.Catalog
	Metrics   *metrics.Metrics
	Registry  prometheus.Gatherer
	Logger    *log.Logger

	handler http.Handler
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock serializes actions on one session. It is dropped from
// Server.locks once no request holds or waits on it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewServer constructs a Server and its routes. Catalog defaults to the
// built-in one and Hub to a fresh hub.
func NewServer(s *Server) *Server {
	if s.Catalog == nil {
		s.Catalog = intake.DefaultCatalog()
	}
	if s.Hub == nil {
		s.Hub = NewHub()
	}
	if s.Logger == nil {
		s.Logger = log.DefaultLogger()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter().UseEncodedPath()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.Registry != nil {
		r.Handle("/metrics", metrics.Handler(s.Registry)).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/complaints", s.sessionAction(s.selectComplaint)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/complaints/{name}", s.sessionAction(s.deselectComplaint)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/start", s.sessionAction(s.startSession)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/answer", s.sessionAction(s.answer)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/advance", s.sessionAction(func(_ *http.Request, sess *intake.Session) error {
		return sess.Advance()
	})).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/retreat", s.sessionAction(func(_ *http.Request, sess *intake.Session) error {
		return sess.Retreat()
	})).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/raw", s.sessionAction(s.answerRaw)).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/finalize", s.handleFinalize).Methods(http.MethodPost)

	api.HandleFunc("/records", s.handleListRecords).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}", s.handleGetRecord).Methods(http.MethodGet)
	api.HandleFunc("/records/{id}/story", s.handleRecordStory).Methods(http.MethodPost)

	api.HandleFunc("/generate-story", s.handleGenerateStory).Methods(http.MethodPost)
	api.HandleFunc("/stories/stream", s.handleStoryStream).Methods(http.MethodGet)

	s.handler = corsMiddleware(r)
}

// ServeHTTP dispatches incoming requests to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	dept := r.URL.Query().Get("department")
	writeJSON(w, http.StatusOK, pkg.CatalogResponse{
		Department: dept,
		Suggested:  s.Catalog.ComplaintsFor(dept),
		Known:      s.Catalog.Names(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req pkg.CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	sess := intake.NewSession(uuid.NewString(), intake.NormalizeDepartment(req.Department))
	if err := s.Sessions.Save(r.Context(), sess); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	unlock := s.lock(id)
	defer unlock()

	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sessionAction loads a session, applies fn and saves it. Actions on one
// session are serialized so concurrent requests cannot lose updates.
func (s *Server) sessionAction(fn func(r *http.Request, sess *intake.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		unlock := s.lock(id)
		defer unlock()

		sess, err := s.Sessions.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := fn(r, sess); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Sessions.Save(r.Context(), sess); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view(sess))
	}
}

func (s *Server) lock(id string) func() {
	s.locksMu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sessionLock)
	}
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *Server) selectComplaint(r *http.Request, sess *intake.Session) error {
	var req pkg.ComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errBadRequest
	}
	return sess.Select(req.Name)
}

func (s *Server) deselectComplaint(r *http.Request, sess *intake.Session) error {
	name, err := url.PathUnescape(mux.Vars(r)["name"])
	if err != nil {
		return errBadRequest
	}
	return sess.Deselect(name)
}

func (s *Server) startSession(r *http.Request, sess *intake.Session) error {
	if err := sess.Begin(s.Catalog); err != nil {
		return err
	}
	s.Metrics.SessionStarted(sess.Department)
	return nil
}

func (s *Server) answer(r *http.Request, sess *intake.Session) error {
	var req pkg.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errBadRequest
	}
	return sess.Answer(req.Value)
}

func (s *Server) answerRaw(r *http.Request, sess *intake.Session) error {
	var req pkg.RawAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return errBadRequest
	}
	sess.AnswerRaw(req.Key, req.Value)
	return nil
}

// handleFinalize folds the session into a grouped record and persists it so
// narrative generation can be retried against the stored record.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req pkg.FinalizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	id := mux.Vars(r)["id"]
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec := &pkg.Record{
		SessionID:  sess.ID,
		Department: sess.Department,
		BasicInfo:  req.BasicInfo,
		Structured: sess.Finalize(),
	}
	if err := s.Records.CreateRecord(r.Context(), rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Metrics.RecordFinalized(rec.Department)
	s.Logger.Info("record finalized", "session_id", sess.ID, "record_id", rec.ID, "answers", rec.Structured.AnswerCount())
	writeJSON(w, http.StatusCreated, pkg.FinalizeResponse{RecordID: rec.ID, Structured: rec.Structured})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.Records.ListRecords(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []pkg.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.Records.GetRecord(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.Records.LatestNarrative(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg.RecordView{Record: rec, Narrative: n})
}

// handleRecordStory generates a narrative for a stored record. Failures leave
// the record untouched, so the client may simply call again.
func (s *Server) handleRecordStory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.Records.GetRecord(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	story, err := s.Narrator.Generate(r.Context(), pkg.StoryRequest{
		Structured: rec.Structured,
		Department: rec.Department,
		BasicInfo:  rec.BasicInfo,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.Records.SaveNarrative(r.Context(), id, story); err != nil {
		s.writeError(w, r, err)
		return
	}
	story.RecordID = id
	s.announce(r.Context(), id)
	writeJSON(w, http.StatusOK, story)
}

// handleGenerateStory is the stateless form: the client posts the record
// itself and nothing is stored.
func (s *Server) handleGenerateStory(w http.ResponseWriter, r *http.Request) {
	var req pkg.StoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Structured == nil && len(req.Answers) == 0 {
		writeBadRequest(w, "Structured data is required")
		return
	}
	story, err := s.Narrator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

func (s *Server) announce(ctx context.Context, recordID string) {
	if s.Publisher == nil {
		s.Hub.Broadcast(recordID)
		return
	}
	if err := s.Publisher.Notify(ctx, recordID); err != nil {
		s.Logger.WithError(err).Warn("notify failed", "record_id", recordID)
	}
}

func view(sess *intake.Session) pkg.SessionView {
	v := pkg.SessionView{Session: sess, Progress: sess.Progress()}
	if q, ok := sess.Current(); ok {
		v.Current = &q
		if a, ok := sess.Default(); ok {
			v.Default = &a
		}
	}
	return v
}
