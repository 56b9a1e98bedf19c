// Package handlers provides HTTP handlers for the safety API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/vitalcare/go-medsafe/internal/api/middleware"
	"github.com/vitalcare/go-medsafe/internal/domain/safety"
	"github.com/vitalcare/go-medsafe/internal/observability/metrics"
)

// SafetyHandler handles medication-safety assessment endpoints
type SafetyHandler struct {
	assessor *safety.Assessor
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSafetyHandler creates a new handler. m may be nil when metrics are not
// collected.
func NewSafetyHandler(assessor *safety.Assessor, m *metrics.Metrics, logger *zap.Logger) *SafetyHandler {
	return &SafetyHandler{
		assessor: assessor,
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
	}
}

// Routes returns the handler routes
func (h *SafetyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Assess)
	return r
}

// Assess handles POST /assessments. The response always carries the full
// verdict; a high-risk alert fans out asynchronously and never delays the
// caller.
func (h *SafetyHandler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("safety-handler")
	ctx, span := tracer.Start(ctx, "assess_medications")
	defer span.End()

	var req safety.AssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.jsonError(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	span.SetAttributes(
		attribute.String("patient_id", req.PatientID),
		attribute.Int("medication_count", len(req.Medications)),
	)

	start := time.Now()
	assessment, err := h.assessor.Assess(ctx, &req)
	if err != nil {
		if errors.Is(err, safety.ErrInvalidRequest) {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("assessment failed",
			zap.String("patient_id", req.PatientID),
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err))
		h.jsonError(w, "assessment failed", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.AssessmentsTotal.Inc()
		h.metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
		h.metrics.RiskLevel.WithLabelValues(string(assessment.OverallRisk.Level)).Inc()
		if assessment.BlocksAdministration {
			h.metrics.AssessmentsBlocked.Inc()
		}
		for _, checker := range assessment.Degraded {
			h.metrics.CheckerDegraded.WithLabelValues(checker).Inc()
		}
	}

	h.logger.Info("assessment completed",
		zap.String("patient_id", req.PatientID),
		zap.String("request_id", middleware.GetRequestID(ctx)),
		zap.Int("score", assessment.OverallRisk.Score),
		zap.String("level", string(assessment.OverallRisk.Level)),
		zap.Bool("blocks", assessment.BlocksAdministration),
		zap.Strings("degraded", assessment.Degraded),
	)

	h.jsonData(w, http.StatusOK, assessment)
}

func (h *SafetyHandler) jsonData(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func (h *SafetyHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
