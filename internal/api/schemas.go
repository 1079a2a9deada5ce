package api

import (
	"time"

	"trim-it/internal/domain"
	"trim-it/internal/pipeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type ErrorResponse struct {
	Error string         `json:"error"`
	Code  string         `json:"code"`
	Stage pipeline.Stage `json:"stage,omitempty"`
	JobID string         `json:"job_id,omitempty"`
}

type ToolStatusResponse struct {
	State    domain.ToolState   `json:"state"`
	Label    string             `json:"label"`
	Progress int                `json:"progress"`
	Failure  domain.ToolFailure `json:"failure,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Path     string             `json:"path,omitempty"`
}

func ToolStatusToResponse(s domain.ToolStatus) ToolStatusResponse {
	return ToolStatusResponse{
		State:    s.State,
		Label:    s.Label(),
		Progress: s.Progress,
		Failure:  s.Failure,
		Reason:   s.Reason,
		Path:     s.Path,
	}
}

// ClipRequest is the POST /clips body. Start and End use HH:MM:SS[.mmm].
type ClipRequest struct {
	Source string `json:"source"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Ratio  string `json:"ratio,omitempty"`
	Async  bool   `json:"async,omitempty"`
}

type ClipResponse struct {
	JobID      string   `json:"job_id"`
	Outcome    string   `json:"outcome,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Notes      []string `json:"notes,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Source    string `json:"source,omitempty"`
	StartedAt string `json:"started_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

func JobToResponse(j domain.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Status:    string(j.Status),
		Source:    j.Source,
		StartedAt: j.StartedAt.Format(time.RFC3339),
	}
}
