package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"trim-it/internal/bootstrap"
	"trim-it/internal/domain"
	"trim-it/internal/jobs"
)

func noServices(t *testing.T) servicesFactory {
	return func(string, io.Writer) (*bootstrap.Services, error) {
		t.Fatal("services must not be built")
		return nil, nil
	}
}

func execute(root *cobra.Command, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// TestWaitForToolPrintsLabelsUntilTerminal streams labels in order.
func TestWaitForToolPrintsLabelsUntilTerminal(t *testing.T) {
	bus := jobs.NewEventBus(10)
	start := func() <-chan struct{} {
		for _, s := range []domain.ToolStatus{
			{State: domain.ToolStateChecking, Progress: -1},
			{State: domain.ToolStateDownloading, Progress: 50},
			{State: domain.ToolStateReady, Progress: -1, Path: "/data/bin/ffmpeg"},
		} {
			bus.Publish(jobs.Event{Topic: jobs.TopicToolStatus, Message: s.Label(), Tool: &s})
		}
		return nil
	}

	var out bytes.Buffer
	status, err := waitForTool(context.Background(), bus, start, &out)
	if err != nil {
		t.Fatalf("waitForTool() error = %v", err)
	}
	if status.State != domain.ToolStateReady || status.Path != "/data/bin/ffmpeg" {
		t.Fatalf("status = %+v, want ready", status)
	}
	want := "Checking for FFmpeg...\nDownloading FFmpeg... 50%\nFFmpeg is ready.\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

// TestWaitForToolHonoursCancel returns the context error.
func TestWaitForToolHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waitForTool(ctx, jobs.NewEventBus(10), func() <-chan struct{} { return nil }, io.Discard)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("waitForTool() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

// TestTrimCommandValidatesFlagsBeforeLoading rejects bad input early.
func TestTrimCommandValidatesFlagsBeforeLoading(t *testing.T) {
	_, _, err := execute(NewRootCommand(noServices(t)), "trim", "in.mp4", "--start", "00:00:01", "--end", "00:00:02", "--ratio", "4:3")
	if err == nil || !strings.Contains(err.Error(), "unsupported ratio") {
		t.Fatalf("error = %v, want unsupported ratio", err)
	}

	_, _, err = execute(NewRootCommand(noServices(t)), "trim", "in.mp4", "--end", "00:00:02")
	if err == nil || !strings.Contains(err.Error(), "start") {
		t.Fatalf("error = %v, want required start flag", err)
	}
}

// TestDoctorCommandReportsDirectories runs real checks against temp dirs.
func TestDoctorCommandReportsDirectories(t *testing.T) {
	root := t.TempDir()
	settingsPath := filepath.Join(root, "settings.json")
	raw, err := json.Marshal(map[string]string{
		"output_dir": filepath.Join(root, "out"),
		"temp_dir":   filepath.Join(root, "tmp"),
		"data_dir":   filepath.Join(root, "data"),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(settingsPath, raw, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	stdout, _, _ := execute(NewRootCommand(defaultServices), "doctor", "--settings", settingsPath)

	for _, want := range []string{
		"[PASS] Output directory: Writable directory: " + filepath.Join(root, "out"),
		"[PASS] Temporary directory:",
		"] ffmpeg:",
		"] yt-dlp:",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("doctor output missing %q:\n%s", want, stdout)
		}
	}
}

// TestPrintReportShowsHintsForProblems skips hints on passing items.
func TestPrintReportShowsHintsForProblems(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, domain.DiagnosticReport{Items: []domain.DiagnosticItem{
		{Name: "ffmpeg", Status: domain.DiagnosticStatusPass, Message: "Found at /bin/ffmpeg", Hint: "unused"},
		{Name: "yt-dlp", Status: domain.DiagnosticStatusWarn, Message: "missing", Hint: "install it"},
	}})

	want := "[PASS] ffmpeg: Found at /bin/ffmpeg\n[WARN] yt-dlp: missing\n       install it\n"
	if out.String() != want {
		t.Fatalf("printReport() = %q, want %q", out.String(), want)
	}
}

// TestPrintClipEvents renders status and progress lines.
func TestPrintClipEvents(t *testing.T) {
	ch := make(chan jobs.Event, 3)
	ch <- jobs.Event{Type: jobs.EventTypeStatus, Status: domain.JobStatusDownloading, Message: "Downloading source"}
	ch <- jobs.Event{Type: jobs.EventTypeProgress, Message: "Downloading source... 40%"}
	ch <- jobs.Event{Type: jobs.EventTypeResult, Message: "ignored"}
	close(ch)

	var out bytes.Buffer
	printClipEvents(ch, &out)

	want := "[downloading] Downloading source\nDownloading source... 40%\n"
	if out.String() != want {
		t.Fatalf("printClipEvents() = %q, want %q", out.String(), want)
	}
}
