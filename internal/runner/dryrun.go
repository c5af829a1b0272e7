package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/backend"
)

// DryRunDriver logs what would be captured and touches nothing.
type DryRunDriver struct {
	Log *zap.SugaredLogger
}

func (d *DryRunDriver) Capture(_ context.Context, _ *backend.Session, shot Shot) (string, error) {
	d.Log.Infow("dry run, capture skipped",
		"name", shot.Name, "url", shot.URL, "width", shot.Width, "height", shot.Height)
	return "", nil
}
