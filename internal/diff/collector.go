// Package diff collects the change payload a run analyzes and owns the
// last-analyzed baseline pointer.
package diff

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Injected diff payload for remote execution contexts, where recomputing
// locally is impossible. The base64 variant survives hostile shells.
const (
	EnvDiff    = "AETHER_DIFF"
	EnvDiffB64 = "AETHER_DIFF_B64"
)

// MaxPayloadBytes caps the content shipped to resolution and assembly.
const MaxPayloadBytes = 256 << 10

var (
	ErrNoRepository = errors.New("no version control context")
	ErrNoChanges    = errors.New("no changes since last analyzed state")
)

// IsUnavailable reports whether err means there is nothing to analyze. Such
// failures abort the current run only, never a watch loop.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNoRepository) || errors.Is(err, ErrNoChanges)
}

// Payload is the collected change content.
type Payload struct {
	BaseRef   string
	Content   string
	Truncated bool
}

// Collector produces Payloads for a working tree. It is the sole mutator of
// the baseline: a successful Collect advances it so the next collection is
// relative to this run's end state.
type Collector struct {
	dir string
	log *zap.SugaredLogger

	mu       sync.Mutex
	baseline string
}

func NewCollector(dir string, log *zap.SugaredLogger) *Collector {
	return &Collector{dir: dir, log: log}
}

// Collect returns the current change payload. An injected environment
// payload wins over local computation and leaves the baseline untouched.
func (c *Collector) Collect(ctx context.Context) (Payload, error) {
	if p, ok := c.fromEnv(); ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	repo, err := git.PlainOpenWithOptions(c.dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Payload{}, fmt.Errorf("%w: %s is not inside a git repository", ErrNoRepository, c.dir)
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}

	fingerprint, dirty, err := worktreeFingerprint(repo)
	if err != nil {
		return Payload{}, err
	}
	if !dirty {
		return Payload{}, ErrNoChanges
	}
	if fingerprint == c.baseline {
		return Payload{}, fmt.Errorf("%w: worktree unchanged since last run", ErrNoChanges)
	}

	baseRef := "worktree"
	if head, err := repo.Head(); err == nil {
		baseRef = head.Hash().String()[:8]
	}

	content, err := c.patchText(ctx)
	if err != nil {
		return Payload{}, err
	}
	if strings.TrimSpace(content) == "" {
		return Payload{}, ErrNoChanges
	}

	p := clamp(Payload{BaseRef: baseRef, Content: content})
	c.baseline = fingerprint
	return p, nil
}

// Reset clears the baseline so the next Collect reports any worktree change.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseline = ""
}

func (c *Collector) fromEnv() (Payload, bool) {
	if b64 := os.Getenv(EnvDiffB64); b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err == nil {
			return clamp(Payload{BaseRef: "env", Content: string(raw)}), true
		}
		c.log.Warnw("ignoring undecodable injected diff", "var", EnvDiffB64, "error", err)
	}
	if raw := os.Getenv(EnvDiff); raw != "" {
		return clamp(Payload{BaseRef: "env", Content: raw}), true
	}
	return Payload{}, false
}

// patchText shells out for the unified patch. go-git diffs trees and
// commits, not a dirty worktree against HEAD, and the payload must match
// what git itself prints.
func (c *Collector) patchText(ctx context.Context) (string, error) {
	out, err := runGit(ctx, c.dir, "diff", "HEAD")
	if err == nil {
		return out, nil
	}
	// HEAD is unresolvable in a repository with no commits yet.
	out, fallbackErr := runGit(ctx, c.dir, "diff")
	if fallbackErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	return out, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// worktreeFingerprint hashes the set of changed paths together with their
// current content so two collections of the same dirty state compare equal.
func worktreeFingerprint(repo *git.Repository) (fingerprint string, dirty bool, err error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	if status.IsClean() {
		return "", false, nil
	}

	root := wt.Filesystem.Root()
	lines := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		sum := "absent"
		if raw, readErr := os.ReadFile(filepath.Join(root, path)); readErr == nil {
			h := sha256.Sum256(raw)
			sum = hex.EncodeToString(h[:8])
		}
		lines = append(lines, fmt.Sprintf("%s\x00%c%c\x00%s", path, st.Staging, st.Worktree, sum))
	}
	if len(lines) == 0 {
		return "", false, nil
	}

	sort.Strings(lines)
	h := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:]), true, nil
}

func clamp(p Payload) Payload {
	if len(p.Content) > MaxPayloadBytes {
		p.Content = p.Content[:MaxPayloadBytes]
		p.Truncated = true
	}
	return p
}
