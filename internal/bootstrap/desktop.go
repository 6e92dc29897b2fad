package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// desktopEventName is the runtime event the frontend listens on.
const desktopEventName = "job:event"

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
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
		Title:       "Whisper Desk",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context and starts pushing bus events to
// the frontend.
func (a *App) Startup(ctx context.Context) {
	events, cancel := a.Events.Subscribe()

	a.mu.Lock()
	a.runtimeCtx = ctx
	a.stopForward = cancel
	a.mu.Unlock()

	go func() {
		for ev := range events {
			wailsruntime.EventsEmit(ctx, desktopEventName, ev)
		}
	}()
}

// Shutdown stops event forwarding.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	stop := a.stopForward
	a.stopForward = nil
	a.runtimeCtx = nil
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// PickInputFile opens a native file dialog for media selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// OpenJobFolder opens a job's result directory in the file manager.
func (a *App) OpenJobFolder(jobID string) error {
	if _, err := a.Store.LoadJob(jobID); err != nil {
		return err
	}
	target := a.Registry.ResultFileDirectory(jobID)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("resolve job folder: %w", err)
	}
	return openInFileManager(target)
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, errNoRuntime
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
