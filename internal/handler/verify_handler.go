package handler

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"verify-gate/internal/gate"
	"verify-gate/internal/service"
	"verify-gate/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	maxVerifyBodyBytes = 4 << 10
	unknownIdentity    = "unknown"

	msgIncorrectCode   = "The verification code you entered is incorrect."
	msgTooManyAttempts = "Too many failed attempts. Please try again later."
)

// VerifyHandler serves the code entry page and the verification endpoint.
type VerifyHandler struct {
	verificationService *service.VerificationService
	logger              *zap.Logger
}

func NewVerifyHandler(verificationService *service.VerificationService, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{
		verificationService: verificationService,
		logger:              logger,
	}
}

// verifyResponse is the JSON body of a failed verification.
type verifyResponse struct {
	Message           string     `json:"message"`
	AttemptsRemaining int        `json:"attemptsRemaining"`
	RetryAfter        *time.Time `json:"retryAfter,omitempty"`
}

type verifyRequest struct {
	Code json.RawMessage `json:"code"`
}

func (h *VerifyHandler) RegisterRoutes(router chi.Router) {
	router.Get("/", h.ShowPage)
	router.Post("/verify", h.Verify)
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetServiceStats)
}

// ShowPage renders the code entry form.
func (h *VerifyHandler) ShowPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		ErrorMessage: util.SanitizeInput(r.URL.Query().Get("error"), 200),
	}
	if raw := r.URL.Query().Get("attempts"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 &&
			n < h.verificationService.Policy().MaxAttempts {
			data.AttemptsRemaining = n
			data.ShowAttempts = true
		}
	}

	var buf bytes.Buffer
	if err := renderPage(&buf, data); err != nil {
		h.logger.Error("Failed to render page", util.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-store, max-age=0")
	header.Set("X-Frame-Options", "DENY")
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Verify handles a code submission.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	code := decodeCode(w, r)
	event := h.verificationService.Verify(r.Context(), clientIdentity(r), code)

	switch event.Outcome {
	case gate.Accepted:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(h.verificationService.Destination()))

	case gate.Locked:
		retryAfter := event.RetryAfter.UTC()
		wait := math.Ceil(event.RetryAfter.Sub(event.EventTime).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(int(wait), 0)))
		h.respondWithJSON(w, http.StatusTooManyRequests, verifyResponse{
			Message:           msgTooManyAttempts,
			AttemptsRemaining: 0,
			RetryAfter:        &retryAfter,
		})

	default:
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(event.AttemptsRemaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(event.RetryAfter.UnixMilli(), 10))
		h.respondWithJSON(w, http.StatusUnauthorized, verifyResponse{
			Message:           msgIncorrectCode,
			AttemptsRemaining: event.AttemptsRemaining,
		})
	}
}

// HealthCheck handles service health check
func (h *VerifyHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.verificationService.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("Health check failed", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"service": "verify-gate",
		})
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "verify-gate",
	})
}

// GetServiceStats handles service statistics
func (h *VerifyHandler) GetServiceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verificationService.GetServiceStats(r.Context())
	if err != nil {
		h.logger.Warn("Failed to get service stats", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"message": err.Error()})
		return
	}
	h.respondWithJSON(w, http.StatusOK, stats)
}

// respondWithJSON sends a JSON response
func (h *VerifyHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// decodeCode extracts the submitted code. Anything that is not a JSON object
// with a string "code" yields "", which the gate treats as a wrong code.
func decodeCode(w http.ResponseWriter, r *http.Request) string {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBodyBytes)).Decode(&req); err != nil {
		return ""
	}
	var code string
	if err := json.Unmarshal(req.Code, &code); err != nil {
		return ""
	}
	return code
}

// clientIdentity keys the throttle on the raw forwarding headers. The headers
// are client controlled, so the identity is spoofable.
func clientIdentity(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	return unknownIdentity
}
