package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/fraudlens/internal/bus"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/intake"
	"github.com/opensource-finance/fraudlens/internal/pipeline"
	"github.com/opensource-finance/fraudlens/internal/repository"
	"github.com/opensource-finance/fraudlens/internal/telemetry"
)

// statusClientClosedRequest is written when the caller disconnects
// mid-request; nobody reads it but the access log.
const statusClientClosedRequest = 499

// Predictor scores raw attributes.
type Predictor interface {
	Predict(ctx context.Context, raw domain.RawAttributes) (*pipeline.Prediction, error)
	Variant() domain.SchemaVariant
	Threshold() float64
	Columns() []string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	predictor Predictor
	intake    *intake.Intake
	repo      domain.Repository
	bus       domain.EventBus
	version   string
}

// NewHandler creates a new API handler. repo and bus may be nil.
func NewHandler(predictor Predictor, in *intake.Intake, repo domain.Repository, bus domain.EventBus, version string) *Handler {
	return &Handler{
		predictor: predictor,
		intake:    in,
		repo:      repo,
		bus:       bus,
		version:   version,
	}
}

// PredictResponse is the response for a successful prediction.
type PredictResponse struct {
	PredictionID string               `json:"predictionId"`
	Label        int                  `json:"label"`
	Probability  float64              `json:"probability"`
	Threshold    float64              `json:"threshold"`
	Variant      domain.SchemaVariant `json:"variant"`
	Metadata     struct {
		RequestID string         `json:"requestId"`
		TraceID   string         `json:"traceId"`
		Stages    []domain.Stage `json:"stages"`
		TotalMs   int64          `json:"totalMs"`
		Version   string         `json:"version"`
	} `json:"metadata"`
}

// FailureResponse is the response for a prediction that could not be
// produced.
type FailureResponse struct {
	Error        string       `json:"error"`
	PredictionID string       `json:"predictionId"`
	Stage        domain.Stage `json:"stage"`
	Message      string       `json:"message"`
}

// SchemaResponse describes the active feature schema.
type SchemaResponse struct {
	Variant   domain.SchemaVariant `json:"variant"`
	Width     int                  `json:"width"`
	Threshold float64              `json:"threshold"`
	Columns   []string             `json:"columns"`
}

// Predict handles POST /predict requests. The body is the raw attribute
// object.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw domain.RawAttributes
	if err := dec.Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	h.score(w, r, raw)
}

// Questionnaire handles POST /questionnaire requests.
func (h *Handler) Questionnaire(w http.ResponseWriter, r *http.Request) {
	if h.intake == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "questionnaire intake not available",
		})
		return
	}

	var answers intake.Answers
	if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	raw, err := h.intake.Attributes(&answers)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, intake.ErrInvalidAnswers) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{
			"error": err.Error(),
		})
		return
	}

	h.score(w, r, raw)
}

// score runs the pipeline, records the outcome and writes the response.
func (h *Handler) score(w http.ResponseWriter, r *http.Request, raw domain.RawAttributes) {
	start := time.Now()
	ctx := r.Context()
	predictionID := uuid.New().String()

	ctx, span := telemetry.StartSpan(ctx, "api.score", telemetry.PredictionID(predictionID))
	defer span.End()

	pred, err := h.predictor.Predict(ctx, raw)
	elapsed := time.Since(start)

	rec := &domain.PredictionRecord{
		ID:         predictionID,
		RequestID:  GetRequestID(ctx),
		Variant:    h.predictor.Variant(),
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	if err != nil {
		var stageErr *domain.StageError
		switch {
		case errors.Is(err, context.Canceled):
			slog.Info("client went away before scoring", "prediction_id", predictionID)
			w.WriteHeader(statusClientClosedRequest)
			return
		case errors.Is(err, context.DeadlineExceeded):
			slog.Warn("prediction timed out", "prediction_id", predictionID, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "prediction timed out",
			})
			return
		case !errors.As(err, &stageErr):
			slog.Error("prediction failed", "prediction_id", predictionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
			return
		}

		rec.Status = domain.PredictionFailed
		rec.FailedStage = stageErr.Stage
		rec.Error = stageErr.Err.Error()
		h.record(ctx, rec)

		writeJSON(w, http.StatusUnprocessableEntity, FailureResponse{
			Error:        domain.ErrPredictionUnavailable.Error(),
			PredictionID: predictionID,
			Stage:        stageErr.Stage,
			Message:      stageErr.Err.Error(),
		})
		return
	}

	rec.Status = domain.PredictionScored
	rec.Label = pred.Score.Label
	rec.Probability = pred.Score.Probability
	h.record(ctx, rec)

	resp := PredictResponse{
		PredictionID: predictionID,
		Label:        pred.Score.Label,
		Probability:  pred.Score.Probability,
		Threshold:    pred.Score.Threshold,
		Variant:      pred.Variant,
	}
	resp.Metadata.RequestID = rec.RequestID
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.Stages = pred.Stages
	resp.Metadata.TotalMs = elapsed.Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// record writes the audit row and publishes the outcome event. Neither
// failure affects the response.
func (h *Handler) record(ctx context.Context, rec *domain.PredictionRecord) {
	if h.repo != nil {
		if err := h.repo.SavePrediction(ctx, rec); err != nil {
			slog.Error("failed to save prediction", "prediction_id", rec.ID, "error", err)
		}
	}

	if h.bus != nil {
		evt := &domain.PredictionEvent{
			PredictionID: rec.ID,
			Variant:      rec.Variant,
			Label:        rec.Label,
			Probability:  rec.Probability,
			FailedStage:  rec.FailedStage,
			Error:        rec.Error,
			Timestamp:    rec.CreatedAt.UnixNano(),
		}
		if err := bus.PublishPrediction(ctx, h.bus, evt); err != nil {
			slog.Warn("failed to publish prediction event", "prediction_id", rec.ID, "error", err)
		}
	}
}

// GetPrediction retrieves an audit record by ID.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	predictionID := chi.URLParam(r, "id")

	if predictionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "prediction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetPrediction(ctx, predictionID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get prediction", "id", predictionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load prediction",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListPredictions returns the most recent audit records.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 1000",
			})
			return
		}
		limit = n
	}

	records, err := h.repo.ListPredictions(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list predictions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list predictions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": records,
		"count":       len(records),
	})
}

// Schema returns the active variant and its column order.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	columns := h.predictor.Columns()
	writeJSON(w, http.StatusOK, SchemaResponse{
		Variant:   h.predictor.Variant(),
		Width:     len(columns),
		Threshold: h.predictor.Threshold(),
		Columns:   columns,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"variant": string(h.predictor.Variant()),
		"version": h.version,
	})
}

// Ready reports whether the server can score. Artifacts are loaded
// before the server starts, so a running server is ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
