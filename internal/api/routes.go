package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/logging"
	"trim-it/internal/metrics"
	"trim-it/internal/pipeline"
)

const Version = "0.1.0"

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	if cfg.NewJobID == nil {
		cfg.NewJobID = uuid.NewString
	}
	if cfg.BackgroundCtx == nil {
		cfg.BackgroundCtx = context.Background()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/tool", func(r chi.Router) {
		r.Get("/status", toolStatusHandler(cfg))
		r.Post("/ensure", ensureToolHandler(cfg, cfg.Toolchain.Ensure))
		r.Post("/retry", ensureToolHandler(cfg, cfg.Toolchain.Retry))
		r.Get("/events", eventsHandler(cfg, jobs.TopicToolStatus))
	})

	r.Route("/clips", func(r chi.Router) {
		r.Post("/", createClipHandler(cfg))
		r.Get("/", listClipsHandler(cfg))
		r.Get("/events", eventsHandler(cfg, jobs.TopicClip))
		r.Delete("/{id}", cancelClipHandler(cfg))
	})

	r.Get("/diagnostics", diagnosticsHandler(cfg))

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: uptime,
		})
	}
}

func toolStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ToolStatusToResponse(cfg.Toolchain.Status()))
	}
}

// ensureToolHandler starts provisioning without waiting; progress is on
// /tool/events.
func ensureToolHandler(cfg ServerConfig, start func() <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start()
		WriteJSON(w, http.StatusAccepted, ToolStatusToResponse(cfg.Toolchain.Status()))
	}
}

func createClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Source) == "" {
			WriteError(w, http.StatusBadRequest, "source is required", "BAD_REQUEST")
			return
		}

		jobID := cfg.NewJobID()
		preq := pipeline.Request{
			JobID:  jobID,
			Source: req.Source,
			Start:  req.Start,
			End:    req.End,
			Ratio:  req.Ratio,
		}

		if req.Async {
			status := cfg.Toolchain.Status()
			if status.State != domain.ToolStateReady {
				msg := fmt.Sprintf("%s%s (%s)", pipeline.ErrorPrefix, domain.ErrToolNotReady, status.Label())
				WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: msg, Code: "TOOL_NOT_READY", Stage: pipeline.StageGate, JobID: jobID})
				return
			}
			go func() {
				if _, err := cfg.Clipper.Run(cfg.BackgroundCtx, preq); err != nil {
					cfg.Logger.Warn("async clip failed", "job_id", jobID, "error", err)
				}
			}()
			WriteJSON(w, http.StatusAccepted, ClipResponse{JobID: jobID})
			return
		}

		res, err := cfg.Clipper.Run(r.Context(), preq)
		if err != nil {
			writePipelineError(w, jobID, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ClipResponse{
			JobID:      res.JobID,
			Outcome:    pipeline.FormatOutcome(res, nil),
			OutputPath: res.OutputPath,
			Notes:      res.Notes,
			Warnings:   res.Warnings,
		})
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active := cfg.Clipper.Active()
		resp := JobsResponse{Jobs: make([]JobResponse, len(active))}
		for i, j := range active {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func cancelClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		if err := cfg.Clipper.Cancel(id); err != nil {
			if errors.Is(err, jobs.ErrNoRunningJob) {
				WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func diagnosticsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Doctor.RunDiagnostics())
	}
}

// eventsHandler streams one bus topic as server-sent events, starting
// with the latest retained event.
func eventsHandler(cfg ServerConfig, topic jobs.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok || cfg.Bus == nil {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		sub := cfg.Bus.Subscribe(topic, true)
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w io.Writer, event jobs.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Topic, data)
	return err
}

func writePipelineError(w http.ResponseWriter, jobID string, err error) {
	resp := ErrorResponse{Error: pipeline.FormatOutcome(pipeline.Result{}, err), JobID: jobID}
	var perr *pipeline.PipelineError
	if errors.As(err, &perr) {
		resp.Stage = perr.Stage
	}

	status := http.StatusInternalServerError
	resp.Code = "INTERNAL_ERROR"
	switch {
	case errors.Is(err, domain.ErrToolNotReady):
		status, resp.Code = http.StatusServiceUnavailable, "TOOL_NOT_READY"
	case errors.Is(err, context.Canceled):
		status, resp.Code = http.StatusConflict, "CANCELLED"
	case errors.Is(err, domain.ErrInvalidTimeRange), errors.Is(err, domain.ErrInvalidSource), resp.Stage == pipeline.StageValidate:
		status, resp.Code = http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrBadStatus):
		status, resp.Code = http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	WriteJSON(w, status, resp)
}
