package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"trim-it/internal/domain"
	"trim-it/internal/jobs"
	"trim-it/internal/pipeline"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var videoDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Video files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.webm;*.m4v;*.ts",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// emitFunc matches wailsruntime.EventsEmit.
type emitFunc func(ctx context.Context, eventName string, optionalData ...interface{})

// App binds the service graph to the wails desktop runtime.
type App struct {
	services *Services
	assets   fs.FS
	emit     emitFunc

	mu         sync.Mutex
	runtimeCtx context.Context
	bridge     *jobs.Subscription
	bridgeDone chan struct{}
}

// New builds the desktop application with persisted settings.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	services, err := NewServices(Options{})
	if err != nil {
		return nil, err
	}
	return NewApp(services, assets), nil
}

// NewApp wraps an existing service graph.
func NewApp(services *Services, assets fs.FS) *App {
	return &App{
		services: services,
		assets:   assets,
		emit:     wailsruntime.EventsEmit,
	}
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Trim It",
		Width:       960,
		Height:      720,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the runtime context, starts forwarding bus events to
// the frontend and kicks off ffmpeg provisioning.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	if a.bridge == nil {
		a.bridge = a.services.Bus.Subscribe(jobs.TopicAll, false)
		a.bridgeDone = make(chan struct{})
		go a.forward(a.bridge, a.bridgeDone)
	}
	a.mu.Unlock()

	a.EnsureFFmpegIsReady()
}

// Shutdown stops the event bridge and cancels background work.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	bridge, done := a.bridge, a.bridgeDone
	a.bridge, a.bridgeDone = nil, nil
	a.runtimeCtx = nil
	a.mu.Unlock()

	if bridge != nil {
		bridge.Close()
		<-done
	}
	a.services.Close()
}

// forward relays events in publish order. Tool status events carry the
// label string; clip events carry the full event.
func (a *App) forward(sub *jobs.Subscription, done chan struct{}) {
	defer close(done)
	for event := range sub.C {
		a.mu.Lock()
		ctx := a.runtimeCtx
		a.mu.Unlock()
		if ctx == nil {
			continue
		}
		if event.Topic == jobs.TopicToolStatus {
			a.emit(ctx, string(event.Topic), event.Message)
			continue
		}
		a.emit(ctx, string(event.Topic), event)
	}
}

// EnsureFFmpegIsReady triggers provisioning. Progress arrives as
// ffmpeg_status events.
func (a *App) EnsureFFmpegIsReady() {
	a.services.Provisioner.Ensure()
}

// RetryFFmpegSetup restarts provisioning after a failure.
func (a *App) RetryFFmpegSetup() {
	a.services.Provisioner.Retry()
}

// ToolStatus returns the current provisioning status.
func (a *App) ToolStatus() domain.ToolStatus {
	return a.services.Provisioner.Status()
}

// TrimVideo cuts one clip and returns the rendered outcome. Failures are
// reported in the string, prefixed with "Error:".
func (a *App) TrimVideo(source, start, end, ratio string) (string, error) {
	_, outcome, _ := a.services.Trim(context.Background(), pipeline.Request{
		Source: source,
		Start:  start,
		End:    end,
		Ratio:  ratio,
	})
	return outcome, nil
}

// CancelTrim stops one running clip.
func (a *App) CancelTrim(jobID string) error {
	return a.services.Pipeline.Cancel(jobID)
}

// ActiveTrims lists running clips.
func (a *App) ActiveTrims() []domain.Job {
	return a.services.Pipeline.Active()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.services.Bus.Since(sinceSeq)
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	return a.services.ReloadSettings()
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	return a.services.SaveSettings(settings)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.services.Diagnostics()
}

// RefreshDiagnostics reloads settings and reruns dependency checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	if _, err := a.services.ReloadSettings(); err != nil {
		return domain.DiagnosticReport{}, err
	}
	return a.services.RunDiagnostics(), nil
}

// InstallOrFixDiagnostic applies the remediation for one diagnostic item.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	return a.services.FixDiagnostic(context.Background(), itemID)
}

// PickInputFile opens a native file dialog for video selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select video file",
		Filters: videoDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for clip output.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		target = a.services.Settings().OutputDir
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
