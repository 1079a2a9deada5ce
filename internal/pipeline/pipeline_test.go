package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trim-it/internal/clip"
	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/process"
	"trim-it/internal/source"
	"trim-it/internal/toolchain"
	"trim-it/internal/transfer"
)

type fakeGate struct {
	status domain.ToolStatus
}

func (g fakeGate) Status() domain.ToolStatus { return g.status }

func (g fakeGate) Tool() (toolchain.Tool, bool) {
	if g.status.State != domain.ToolStateReady {
		return toolchain.Tool{}, false
	}
	return toolchain.Tool{FFmpeg: "/bin/ffmpeg", FFprobe: "/bin/ffprobe"}, true
}

var readyGate = fakeGate{status: domain.ToolStatus{State: domain.ToolStateReady, Path: "/bin/ffmpeg"}}

type countingResolver struct {
	calls int
}

func (r *countingResolver) Classify(raw string) (source.Kind, string, error) {
	r.calls++
	return source.KindLocal, raw, nil
}

func (r *countingResolver) Resolve(ctx context.Context, raw string, window source.Window, onProgress transfer.ProgressFunc) (*source.Resolved, error) {
	r.calls++
	return &source.Resolved{Path: raw, Name: filepath.Base(raw), Kind: source.KindLocal}, nil
}

type tempDownloader struct {
	dir  string
	path string
	err  error
}

func (d *tempDownloader) Download(ctx context.Context, rawURL string, onProgress transfer.ProgressFunc) (source.Download, error) {
	if d.err != nil {
		return source.Download{}, d.err
	}
	onProgress(50, 100)
	onProgress(100, 100)
	d.path = filepath.Join(d.dir, "trimit-1-x.mp4")
	return source.Download{Path: d.path}, os.WriteFile(d.path, []byte("video"), 0o644)
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []clip.Request
	execute func(ctx context.Context, req clip.Request) (clip.Result, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, req clip.Request) (clip.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if e.execute != nil {
		return e.execute(ctx, req)
	}
	return clip.Result{
		OutputPath: filepath.Join(req.OutputDir, "talk_trimmed_20260101000000.mp4"),
		Log:        process.Log{Command: req.FFmpeg, Args: []string{"-y"}},
	}, nil
}

func settings(t *testing.T) domain.Settings {
	return domain.Settings{OutputDir: t.TempDir(), EncodePreset: "veryfast", EncodeCRF: domain.CRF(23)}
}

func drain(sub *jobs.Subscription) []jobs.Event {
	var out []jobs.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		case <-time.After(200 * time.Millisecond):
			return out
		}
	}
}

// TestRunGateNotReadySkipsResolver fails fast while ffmpeg is not ready.
func TestRunGateNotReadySkipsResolver(t *testing.T) {
	gate := fakeGate{status: domain.ToolStatus{State: domain.ToolStateFailed, Failure: domain.ToolFailureNetwork, Reason: "dial tcp: timeout"}}
	res := &countingResolver{}
	exec := &fakeExecutor{}
	p := NewForTests(gate, res, exec, nil, settings(t), nil)

	_, err := p.Run(context.Background(), Request{Source: "/tmp/in.mp4", Start: "00:00:01", End: "00:00:02"})
	if !errors.Is(err, domain.ErrToolNotReady) {
		t.Fatalf("error = %v, want %v", err, domain.ErrToolNotReady)
	}
	if res.calls != 0 || len(exec.calls) != 0 {
		t.Fatalf("resolver calls = %d, executor calls = %d, want 0", res.calls, len(exec.calls))
	}
	want := "Error: ffmpeg is not ready (FFmpeg setup failed (network): dial tcp: timeout)"
	if got := FormatOutcome(Result{}, err); got != want {
		t.Fatalf("FormatOutcome = %q, want %q", got, want)
	}
}

// TestRunRejectsBadRequests validates before resolving.
func TestRunRejectsBadRequests(t *testing.T) {
	res := &countingResolver{}
	p := NewForTests(readyGate, res, &fakeExecutor{}, nil, settings(t), nil)

	cases := []struct {
		req  Request
		want error
	}{
		{Request{Source: "a.mp4", Start: "00:00:05", End: "00:00:05", Ratio: "Original"}, domain.ErrInvalidTimeRange},
		{Request{Source: "a.mp4", Start: "00:00:09", End: "00:00:05", Ratio: "Original"}, domain.ErrInvalidTimeRange},
		{Request{Source: "a.mp4", Start: "5s", End: "00:00:05", Ratio: "Original"}, domain.ErrInvalidTimeRange},
	}
	for _, tc := range cases {
		_, err := p.Run(context.Background(), tc.req)
		if !errors.Is(err, tc.want) {
			t.Fatalf("Run(%+v) error = %v, want %v", tc.req, err, tc.want)
		}
		var perr *PipelineError
		if !errors.As(err, &perr) || perr.Stage != StageValidate {
			t.Fatalf("error = %#v, want validate stage", err)
		}
	}

	for _, ratio := range []string{"4:3", ""} {
		_, err := p.Run(context.Background(), Request{Source: "a.mp4", Start: "00:00:01", End: "00:00:02", Ratio: ratio})
		if err == nil || !strings.HasPrefix(FormatOutcome(Result{}, err), ErrorPrefix) {
			t.Fatalf("ratio %q error = %v, want rejection", ratio, err)
		}
	}
	if res.calls != 0 {
		t.Fatalf("resolver calls = %d, want 0", res.calls)
	}
}

// TestRunLocalSuccess publishes ordered job events and formats the outcome.
func TestRunLocalSuccess(t *testing.T) {
	bus := jobs.NewEventBus(100)
	sub := bus.Subscribe(jobs.TopicClip, false)
	defer sub.Close()

	input := filepath.Join(t.TempDir(), "talk.mp4")
	if err := os.WriteFile(input, []byte("video"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	cfg := settings(t)
	exec := &fakeExecutor{execute: func(ctx context.Context, req clip.Request) (clip.Result, error) {
		return clip.Result{
			OutputPath: filepath.Join(req.OutputDir, "talk_trimmed_20260101000000.mp4"),
			Notes:      []string{"end clamped to media duration 00:00:30"},
		}, nil
	}}
	p := NewForTests(readyGate, source.NewResolver(&tempDownloader{}, nil, nil), exec, bus, cfg, func() string { return "job-1" })

	res, err := p.Run(context.Background(), Request{Source: input, Start: "00:00:10", End: "00:00:45", Ratio: "9:16"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.JobID != "job-1" {
		t.Fatalf("job id = %q", res.JobID)
	}

	got := exec.calls[0]
	if got.Start != 10*time.Second || got.End != 45*time.Second || got.Ratio != domain.Ratio9x16 {
		t.Fatalf("executor request = %+v", got)
	}
	if got.OutputDir != cfg.OutputDir || got.Preset != "veryfast" || got.CRF != 23 || got.FFmpeg != "/bin/ffmpeg" {
		t.Fatalf("executor request = %+v", got)
	}

	outcome := FormatOutcome(res, nil)
	wantOutcome := SuccessPrefix + " Saved to: " + res.OutputPath + "\nNote: end clamped to media duration 00:00:30"
	if outcome != wantOutcome {
		t.Fatalf("outcome = %q, want %q", outcome, wantOutcome)
	}

	var statuses []domain.JobStatus
	for _, ev := range drain(sub) {
		if ev.JobID != "job-1" {
			t.Fatalf("event job id = %q", ev.JobID)
		}
		if ev.Status != "" {
			statuses = append(statuses, ev.Status)
		}
	}
	want := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusResolving, domain.JobStatusTrimming, domain.JobStatusDone}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
	if len(p.Active()) != 0 {
		t.Fatalf("active jobs = %v, want none", p.Active())
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("local input must not be removed: %v", err)
	}
}

// TestRunRemoteReleasesTempFile removes downloads after success and failure.
func TestRunRemoteReleasesTempFile(t *testing.T) {
	for _, fail := range []bool{false, true} {
		dl := &tempDownloader{dir: t.TempDir()}
		exec := &fakeExecutor{}
		if fail {
			exec.execute = func(ctx context.Context, req clip.Request) (clip.Result, error) {
				log := process.Log{Command: req.FFmpeg, ExitCode: 1, Stderr: "Conversion failed!"}
				return clip.Result{}, &clip.CommandError{Log: log, Err: domain.ErrSubprocessNonZero}
			}
		}
		p := NewForTests(readyGate, source.NewResolver(dl, nil, nil), exec, jobs.NewEventBus(10), settings(t), nil)

		_, err := p.Run(context.Background(), Request{Source: "https://cdn.example.com/talk.mp4", Start: "00:00:01", End: "00:00:03", Ratio: "Original"})
		if fail {
			var perr *PipelineError
			if !errors.As(err, &perr) || perr.Stage != StageExecute || perr.CommandLog.ExitCode != 1 {
				t.Fatalf("error = %#v, want execute stage with command log", err)
			}
		} else if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if dl.path == "" {
			t.Fatal("downloader was not used")
		}
		if _, err := os.Stat(dl.path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("temp download should be removed (fail=%v), stat err = %v", fail, err)
		}
		if exec.calls[0].Name != "talk.mp4" {
			t.Fatalf("name = %q, want talk.mp4", exec.calls[0].Name)
		}
	}
}

// TestRunDownloadFailureStage tags download errors.
func TestRunDownloadFailureStage(t *testing.T) {
	dl := &tempDownloader{dir: t.TempDir(), err: domain.ErrBadStatus}
	exec := &fakeExecutor{}
	p := NewForTests(readyGate, source.NewResolver(dl, nil, nil), exec, nil, settings(t), nil)

	_, err := p.Run(context.Background(), Request{Source: "https://cdn.example.com/talk.mp4", Start: "00:00:01", End: "00:00:03", Ratio: "Original"})
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Stage != StageDownload || !errors.Is(err, domain.ErrBadStatus) {
		t.Fatalf("error = %#v, want download stage bad status", err)
	}
	if len(exec.calls) != 0 {
		t.Fatal("executor must not run after a failed download")
	}
}

// TestRunInvalidSource maps resolver rejections to the resolve stage.
func TestRunInvalidSource(t *testing.T) {
	dl := &tempDownloader{dir: t.TempDir()}
	p := NewForTests(readyGate, source.NewResolver(dl, nil, nil), &fakeExecutor{}, nil, settings(t), nil)

	_, err := p.Run(context.Background(), Request{Source: "no such thing", Start: "00:00:01", End: "00:00:03", Ratio: "Original"})
	var perr *PipelineError
	if !errors.As(err, &perr) || perr.Stage != StageResolve || !errors.Is(err, domain.ErrInvalidSource) {
		t.Fatalf("error = %#v, want resolve stage invalid source", err)
	}
	if dl.path != "" {
		t.Fatal("downloader must not be touched for invalid sources")
	}
}

// TestCancelStopsRunningJob cancels by id while ffmpeg runs.
func TestCancelStopsRunningJob(t *testing.T) {
	running := make(chan struct{})
	exec := &fakeExecutor{execute: func(ctx context.Context, req clip.Request) (clip.Result, error) {
		close(running)
		<-ctx.Done()
		return clip.Result{}, ctx.Err()
	}}
	p := NewForTests(readyGate, &countingResolver{}, exec, nil, settings(t), func() string { return "job-7" })

	errc := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), Request{Source: "/in.mp4", Start: "00:00:01", End: "00:00:03", Ratio: "Original"})
		errc <- err
	}()

	<-running
	active := p.Active()
	if len(active) != 1 || active[0].ID != "job-7" || active[0].Status != domain.JobStatusTrimming {
		t.Fatalf("active = %+v", active)
	}
	if err := p.Cancel("job-7"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want %v", err, context.Canceled)
		}
		if got := FormatOutcome(Result{}, err); got != "Error: cancelled" {
			t.Fatalf("outcome = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if err := p.Cancel("job-7"); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("second cancel error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestConcurrentRunsAreIndependent runs several jobs at once.
func TestConcurrentRunsAreIndependent(t *testing.T) {
	exec := &fakeExecutor{}
	p := NewForTests(readyGate, &countingResolver{}, exec, jobs.NewEventBus(500), settings(t), nil)

	const n = 10
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Run(context.Background(), Request{Source: "/in.mp4", Start: "00:00:01", End: "00:00:03", Ratio: "Original"})
			if err != nil {
				t.Errorf("Run() error = %v", err)
				return
			}
			ids <- res.JobID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate job id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("completed = %d, want %d", len(seen), n)
	}
}
