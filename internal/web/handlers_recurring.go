package web

import (
	"net/http"

	"github.com/JonMunkholm/fintrack/internal/core"
)

// handleRunRecurring runs one materializer pass and returns its summary.
// It answers 409 while a scheduled pass is running.
func (s *Server) handleRunRecurring(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Materializer().RunOnce(r.Context())
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, summary)
}

type healthResponse struct {
	Status           string                   `json:"status"`
	Imports          core.ImportLimiterStatus `json:"imports"`
	RecurringRunning bool                     `json:"recurringRunning"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:           "ok",
		Imports:          s.service.Limiter().Status(),
		RecurringRunning: s.service.Materializer().Running(),
	})
}
