package bootstrap

import (
	"fmt"
	"os"

	"whisper-desk/internal/domain"
)

// FixDiagnostic attempts the automatic remedy for one diagnostic item and
// returns the refreshed report.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	switch itemID {
	case "engine", "tool_git", "tool_cmake":
		if _, err := a.InstallEngine(); err != nil {
			return a.GetDiagnostics(), fmt.Errorf("install engine: %w", err)
		}
	case "models", "default_model":
		settings, err := a.GetSettings()
		if err != nil {
			return domain.DiagnosticReport{}, err
		}
		if _, err := a.DownloadModel(settings.DefaultModel); err != nil {
			return a.GetDiagnostics(), err
		}
	case "data_root":
		if err := os.MkdirAll(a.cfg.DataRoot, 0o755); err != nil {
			return a.GetDiagnostics(), fmt.Errorf("%w: create data root: %v", domain.ErrIO, err)
		}
	default:
		return a.GetDiagnostics(), &domain.ValidationError{
			Field:   "item_id",
			Message: fmt.Sprintf("no automatic fix for %q", itemID),
		}
	}
	return a.RefreshDiagnostics()
}
