// Package httpapi exposes the worker's thin HTTP surface: submitting and
// canceling searches, polling for a committed match, ending matches, queue
// introspection, message history, health and metrics. All heavy lifting
// stays in the worker; these handlers only translate HTTP to store and
// broker calls.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/matchstore"
	"github.com/linguamatch/match-worker/internal/metrics"
	"github.com/linguamatch/match-worker/internal/queue"
	"github.com/linguamatch/match-worker/internal/request"
	"github.com/linguamatch/match-worker/internal/state"
	"github.com/linguamatch/match-worker/internal/uow"
	"github.com/linguamatch/match-worker/internal/usecase"
)

// Server wires the HTTP surface over the worker's stores and broker.
type Server struct {
	queue     *queue.Store
	states    *state.Store
	uows      *uow.Factory
	publisher usecase.Publisher
	now       func() time.Time
}

// NewServer creates the HTTP API server.
func NewServer(q *queue.Store, states *state.Store, uows *uow.Factory, publisher usecase.Publisher) *Server {
	return &Server{
		queue:     q,
		states:    states,
		uows:      uows,
		publisher: publisher,
		now:       time.Now,
	}
}

// Router builds the chi router for the API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/v0", func(r chi.Router) {
		r.Post("/match/toggle", s.handleToggle)
		r.Get("/check_match", s.handleCheckMatch)
		r.Get("/cancel_match", s.handleCancelMatch)
		r.Get("/queue/status", s.handleQueueStatus)
		r.Get("/queue/{user_id}/status", s.handleUserStatus)
		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handleAddMessage)
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", metrics.Handler())
	})
	return r
}

// toggleRequest is the submit/cancel body.
type toggleRequest struct {
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Gender   string          `json:"gender"`
	Criteria domain.Criteria `json:"criteria"`
	LangCode string          `json:"lang_code"`
}

// handleToggle enters the user into the search queue, or cancels a search
// already in flight.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var body toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "rejected", "message": "invalid body"})
		return
	}

	ctx := r.Context()
	now := s.now()

	searching, err := s.queue.IsSearching(ctx, body.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if searching {
		// Toggle off: drop out of the queue and tell the worker.
		if err := s.queue.RemoveFromQueue(ctx, body.UserID); err != nil {
			writeError(w, err)
			return
		}
		s.states.Delete(body.UserID)
		cancel := request.Request{
			UserID:      body.UserID,
			Username:    body.Username,
			Gender:      body.Gender,
			Criteria:    body.Criteria,
			LangCode:    body.LangCode,
			CreatedAt:   now,
			CurrentTime: now,
			Status:      request.StatusSearchCanceled,
			Source:      request.DefaultSource,
		}
		if err := s.publisher.PublishRequest(cancel, 0); err != nil {
			log.Printf("[api] publish cancel for %d: %v", body.UserID, err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "action": "canceled"})
		return
	}

	user, err := domain.NewUser(body.UserID, body.Username, body.Criteria, body.Gender, body.LangCode, now)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "rejected", "message": err.Error()})
		return
	}

	if err := s.queue.AddToQueue(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyInSearch) {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "rejected", "message": "already in search"})
			return
		}
		writeError(w, err)
		return
	}
	s.states.Save(domain.NewUserState(body.UserID, domain.StatusWaiting, now))

	req := request.Request{
		UserID:      body.UserID,
		Username:    body.Username,
		Gender:      body.Gender,
		Criteria:    body.Criteria,
		LangCode:    body.LangCode,
		CreatedAt:   now,
		CurrentTime: now,
		Status:      request.StatusSearchStarted,
		Source:      request.DefaultSource,
	}
	if err := s.publisher.PublishRequest(req, 0); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "action": "search_started"})
}

// handleCheckMatch returns the committed match and room ids for a user, or
// nulls while the search is still running.
func (s *Server) handleCheckMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	matchID, err := s.queue.GetMatchID(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if matchID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"match_id": nil, "room_id": nil})
		return
	}

	u, err := s.uows.Begin(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer u.Rollback()

	match, found, err := u.Matches.Get(ctx, matchID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]interface{}{"match_id": nil, "room_id": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"match_id": match.MatchID, "room_id": match.RoomID})
}

// handleCancelMatch ends an active match as "aborted" or "exited".
func (s *Server) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryUserID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	status := domain.MatchExited
	if r.URL.Query().Get("is_aborted") == "true" {
		status = domain.MatchAborted
	}

	matchID, err := s.queue.GetMatchID(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if matchID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}

	u, err := s.uows.Begin(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer u.Rollback()

	n, err := u.Matches.UpdateStatus(ctx, matchID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := u.Commit(); err != nil {
		writeError(w, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "match_id": matchID})
}

// handleQueueStatus reports the waiting-list depth.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	size, err := s.queue.QueueSize(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"queue_size": size})
}

// handleUserStatus reports one user's searching flag and in-process state.
func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	searching, err := s.queue.IsSearching(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]interface{}{"user_id": userID, "searching": searching}
	if st, ok := s.states.Get(userID); ok {
		resp["status"] = string(st.Status)
		resp["retry_count"] = st.RetryCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// messageBody is the POST /messages payload.
type messageBody struct {
	RoomID string `json:"room_id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RoomID == "" || body.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	ctx := r.Context()
	u, err := s.uows.Begin(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer u.Rollback()

	msg := matchstore.Message{RoomID: body.RoomID, Sender: body.Sender, Text: body.Text, SentAt: s.now()}
	if err := u.Messages.Add(ctx, msg); err != nil {
		writeError(w, err)
		return
	}
	if err := u.Commit(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room_id required"})
		return
	}

	ctx := r.Context()
	u, err := s.uows.Begin(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	defer u.Rollback()

	msgs, err := u.Messages.ListByRoom(ctx, roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []matchstore.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"room_id": roomID, "messages": msgs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	size, err := s.queue.QueueSize(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "match_worker",
		"queue_size": size,
		"timestamp":  s.now().Unix(),
	})
}

func queryUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	log.Printf("[api] internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
