package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/franksrp-ld/ssf/internal/logging"
	"github.com/franksrp-ld/ssf/internal/poller"
	"github.com/franksrp-ld/ssf/internal/risk"
	"github.com/franksrp-ld/ssf/internal/service"
	"github.com/franksrp-ld/ssf/internal/set"
)

const defaultReason = "Lookout updated device/user risk"

// IntakeRequest is the transition-shaped body accepted by the intake
// endpoint, from the poller or any webhook-style caller.
type IntakeRequest struct {
	User           IntakeUser `json:"user"`
	Risk           IntakeRisk `json:"risk"`
	EventTimestamp string     `json:"event_timestamp"`
}

type IntakeUser struct {
	Email string `json:"email"`
}

type IntakeRisk struct {
	CurrentLevel  string `json:"current_level"`
	PreviousLevel string `json:"previous_level"`
	Reason        string `json:"reason"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler serves the relay's HTTP surface: the intake boundary plus the
// SSF discovery document, the published key set and health checks.
type Handler struct {
	relay     *service.Relay
	heartbeat *poller.Heartbeat
	issuer    string
	jwksFile  string
	logger    *logging.Logger

	jwksOnce sync.Once
	jwks     []byte
	jwksErr  error
}

func New(relay *service.Relay, heartbeat *poller.Heartbeat, issuer, jwksFile string, logger *logging.Logger) *Handler {
	return &Handler{
		relay:     relay,
		heartbeat: heartbeat,
		issuer:    issuer,
		jwksFile:  jwksFile,
		logger:    logger,
	}
}

// Intake accepts a risk-transition notification, signs a SET for it and
// pushes the SET downstream.
func (h *Handler) Intake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, errorResponse{
			Error:  "invalid_json",
			Detail: err.Error(),
		})
		return
	}

	if req.User.Email == "" || req.Risk.CurrentLevel == "" {
		h.sendError(w, http.StatusBadRequest, errorResponse{
			Error:  "missing_fields",
			Detail: "user.email and risk.current_level are required",
		})
		return
	}

	reason := req.Risk.Reason
	if reason == "" {
		reason = defaultReason
	}

	t := risk.Transition{
		Subject:    req.User.Email,
		Previous:   risk.NormalizeLevel(req.Risk.PreviousLevel),
		Current:    risk.NormalizeLevel(req.Risk.CurrentLevel),
		Reason:     reason,
		OccurredAt: eventTime(req.EventTimestamp),
	}

	if err := h.relay.HandleTransition(r.Context(), t); err != nil {
		h.logger.ErrorContext(r.Context(), "intake pipeline failed",
			"subject", t.Subject,
			"error", err,
		)
		h.sendError(w, http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

// Discovery serves the SSF transmitter configuration document.
func (h *Handler) Discovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	doc := map[string]any{
		"issuer":                     h.issuer,
		"jwks_uri":                   h.issuer + "/jwks.json",
		"delivery_methods_supported": []string{"push"},
		"events_supported": map[string]any{
			set.DeviceRiskChangeEvent: map[string]any{},
			set.UserRiskChangeEvent:   map[string]any{},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// JWKS serves the published signing key set verbatim. The document is
// produced offline and loaded once.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.jwksOnce.Do(func() {
		h.jwks, h.jwksErr = os.ReadFile(h.jwksFile)
	})
	if h.jwksErr != nil {
		h.logger.Error("failed to read jwks file", "path", h.jwksFile, "error", h.jwksErr)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(h.jwks)
}

// Health answers liveness probes. It is registered on "/" so it also
// owns the fallback for unknown paths.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// Status reports the poll heartbeat.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"poll":   h.heartbeat.Snapshot(),
	})
}

func (h *Handler) sendError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func eventTime(raw string) time.Time {
	if raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Now().UTC()
}
