package backend

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultImage is the browser image launched for managed docker and
// kubernetes backends when the config names none.
const DefaultImage = "browserless/chrome:latest"

// dockerLauncher runs the browser image through the docker CLI.
type dockerLauncher struct {
	log *zap.SugaredLogger
}

func (l *dockerLauncher) launch(ctx context.Context, desc Descriptor, port int) (resource, error) {
	image := desc.Image
	if image == "" {
		image = DefaultImage
	}
	name := fmt.Sprintf("aether-lens-browser-%s", shortID())

	out, err := runCLI(ctx, "docker", "run", "-d", "--rm",
		"--name", name,
		"-p", fmt.Sprintf("127.0.0.1:%d:%d", port, containerPort),
		image)
	if err != nil {
		return nil, fmt.Errorf("docker run %s: %w", image, err)
	}

	res := &dockerResource{name: name}
	l.log.Debugw("container launched", "name", name, "id", firstLine(out), "port", port)
	return res, nil
}

// dockerResource is one managed container.
type dockerResource struct {
	name string
	once sync.Once
	err  error
}

func (r *dockerResource) id() string { return r.name }

func (r *dockerResource) stop(ctx context.Context) error {
	r.once.Do(func() {
		_, r.err = runCLI(ctx, "docker", "rm", "-f", r.name)
	})
	return r.err
}

func (r *dockerResource) alive(ctx context.Context) (bool, error) {
	out, err := runCLI(ctx, "docker", "inspect", "-f", "{{.State.Running}}", r.name)
	if err != nil {
		return false, nil
	}
	return firstLine(out) == "true", nil
}

// runCLI executes a command and returns its combined output, trimmed.
// Failures carry the output so callers can surface the CLI's own message.
func runCLI(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return text, fmt.Errorf("%s: %w: %s", name, err, text)
		}
		return text, fmt.Errorf("%s: %w", name, err)
	}
	return text, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
