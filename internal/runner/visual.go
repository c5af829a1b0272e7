package runner

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/backend"
	"github.com/aether-platform/aether-lens/internal/strategy"
)

// Shot is one screenshot request resolved from a visual strategy.
type Shot struct {
	Name   string
	URL    string
	Width  int
	Height int
}

// Driver captures a shot through some browser transport and returns the
// artifact path it wrote, if any.
type Driver interface {
	Capture(ctx context.Context, sess *backend.Session, shot Shot) (string, error)
}

// VisualRunner executes visual strategies against a live session.
type VisualRunner struct {
	Driver  Driver
	BaseURL string
	Log     *zap.SugaredLogger
}

// Run captures one visual strategy. Failures become results, never errors.
func (r *VisualRunner) Run(ctx context.Context, sess *backend.Session, strat strategy.Strategy) Result {
	res := Result{
		Strategy:  strat.Name,
		Kind:      string(strategy.KindVisual),
		StartedAt: time.Now(),
	}

	if sess == nil || !sess.Usable() {
		res.Status = StatusErrored
		res.Detail = "no usable backend session"
		return res
	}

	target, err := joinURL(r.BaseURL, strat.Path)
	if err != nil {
		res.Status = StatusErrored
		res.Detail = err.Error()
		return res
	}
	shot := Shot{
		Name:   strat.Label,
		URL:    target,
		Width:  strat.ViewportW,
		Height: strat.ViewportH,
	}

	r.Log.Debugw("capture starting",
		"strategy", strat.Name, "url", shot.URL, "viewport", fmt.Sprintf("%dx%d", shot.Width, shot.Height))
	artifact, err := r.Driver.Capture(ctx, sess, shot)
	res.Duration = time.Since(res.StartedAt)
	res.Artifact = artifact

	if err != nil {
		if ctx.Err() != nil {
			res.Status = StatusErrored
			res.Detail = fmt.Sprintf("capture timed out after %s", res.Duration.Round(time.Millisecond))
		} else {
			res.Status = StatusFailed
			res.Detail = err.Error()
		}
		return res
	}

	res.Status = StatusPassed
	r.Log.Debugw("capture finished",
		"strategy", strat.Name, "artifact", artifact, "duration", res.Duration)
	return res
}

func joinURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("app base URL %q: %w", base, err)
	}
	if path == "" {
		path = "/"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}
