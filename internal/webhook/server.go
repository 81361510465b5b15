package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dio26699-sudo/ocrmonday/internal/record"
)

// Enqueuer accepts jobs from trigger deliveries. Deliveries are at-least-once
// and are passed through without deduplication.
type Enqueuer interface {
	Enqueue(itemID, boardID string)
}

// Server handles monday.com webhook deliveries and exposes the processed-job
// records for operators.
type Server struct {
	queue   Enqueuer
	records record.Store
	token   string
	mux     *http.ServeMux
}

// NewServer creates a new Server with a default mux. An empty token disables
// authentication.
func NewServer(queue Enqueuer, records record.Store, token string) *Server {
	return NewServerWithMux(queue, records, token, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(queue Enqueuer, records record.Store, token string, mux *http.ServeMux) *Server {
	s := &Server{
		queue:   queue,
		records: records,
		token:   token,
		mux:     mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /webhook", s.handleWebhook)
	s.mux.HandleFunc("GET /jobs", s.requireAuth(s.handleListJobs))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// authenticate checks the shared-token Authorization header.
func (s *Server) authenticate(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	return r.Header.Get("Authorization") == s.token
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// webhookEvent is the subset of monday's webhook payload we act on. The
// challenge field arrives alone on the verification handshake.
type webhookEvent struct {
	Challenge string `json:"challenge"`
	Event     struct {
		PulseID json.Number `json:"pulseId"`
		BoardID json.Number `json:"boardId"`
	} `json:"event"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	// monday verifies the endpoint by posting a challenge and expecting it
	// echoed back; this happens before any signing is configured.
	if payload.Challenge != "" {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": payload.Challenge})
		return
	}

	if !s.authenticate(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	itemID := payload.Event.PulseID.String()
	boardID := payload.Event.BoardID.String()
	if itemID == "" {
		http.Error(w, "Missing event.pulseId", http.StatusBadRequest)
		return
	}

	s.queue.Enqueue(itemID, boardID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeJSON(w, http.StatusOK, []*record.JobRecord{})
		return
	}
	records, err := s.records.ListJobs()
	if err != nil {
		slog.Error("Failed to list job records", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.mux)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
