package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/backend"
)

// CDPDriver captures screenshots over the Chrome DevTools Protocol. Sessions
// with a resolved endpoint are attached remotely; local sessions launch a
// browser process of their own.
type CDPDriver struct {
	ArtifactDir string
	Headless    bool
	Log         *zap.SugaredLogger
}

func (d *CDPDriver) Capture(ctx context.Context, sess *backend.Session, shot Shot) (string, error) {
	actx, cancelAlloc := d.allocator(ctx, sess)
	defer cancelAlloc()

	cctx, cancelCtx := chromedp.NewContext(actx)
	defer cancelCtx()

	actions := make([]chromedp.Action, 0, 4)
	if shot.Width > 0 && shot.Height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(shot.Width), int64(shot.Height)))
	}
	var png []byte
	actions = append(actions,
		chromedp.Navigate(shot.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 90),
	)

	if err := chromedp.Run(cctx, actions...); err != nil {
		return "", fmt.Errorf("capture %s: %w", shot.URL, err)
	}
	return d.write(shot, png)
}

func (d *CDPDriver) allocator(ctx context.Context, sess *backend.Session) (context.Context, context.CancelFunc) {
	if endpoint := sess.Endpoint(); endpoint != "" {
		return chromedp.NewRemoteAllocator(ctx, endpoint)
	}
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if !d.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

func (d *CDPDriver) write(shot Shot, png []byte) (string, error) {
	if err := os.MkdirAll(d.ArtifactDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%dx%d_%d.png", sanitizeName(shot.Name), shot.Width, shot.Height, time.Now().Unix())
	path := filepath.Join(d.ArtifactDir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	d.Log.Debugw("artifact written", "path", path, "bytes", len(png))
	return path, nil
}

func sanitizeName(s string) string {
	if s == "" {
		return "shot"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, s)
}
