package navigator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/browser"
)

// Diagnostics captures the state of a page the navigator could not progress past.
type Diagnostics interface {
	Capture(ctx context.Context, page browser.Page, name string) error
}

// DirDiagnostics writes <name>.html and <name>.png into Dir.
type DirDiagnostics struct {
	Dir    string
	Logger *zap.Logger
}

func (d DirDiagnostics) Capture(ctx context.Context, page browser.Page, name string) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create diagnostics directory: %w", err)
	}

	snapshot, err := page.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot page: %w", err)
	}
	markup, err := io.ReadAll(snapshot)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	htmlPath := filepath.Join(d.Dir, name+".html")
	if err := os.WriteFile(htmlPath, markup, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", htmlPath, err)
	}

	png, err := page.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to take screenshot: %w", err)
	}
	pngPath := filepath.Join(d.Dir, name+".png")
	if err := os.WriteFile(pngPath, png, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", pngPath, err)
	}

	if d.Logger != nil {
		d.Logger.Info("Diagnostics captured.", zap.String("html", htmlPath), zap.String("screenshot", pngPath))
	}
	return nil
}
