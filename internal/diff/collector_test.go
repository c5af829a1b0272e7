package diff

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const headDiffStub = `#!/bin/sh
case "$*" in
*"diff HEAD"*)
cat <<'EOF'
diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1 +1,2 @@
 package main
+// changed
EOF
;;
*) exit 1 ;;
esac
`

const fallbackDiffStub = `#!/bin/sh
case "$*" in
*HEAD*) echo "fatal: bad revision 'HEAD'" >&2; exit 128 ;;
*)
cat <<'EOF'
diff --git a/new.go b/new.go
--- /dev/null
+++ b/new.go
@@ -0,0 +1 @@
+package fresh
EOF
;;
esac
`

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func clearInjectedDiff(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDiff, "")
	t.Setenv(EnvDiffB64, "")
}

// initRepo creates a git repository with one committed file.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

// stubGit installs a fake git binary ahead of the real one on PATH.
func stubGit(t *testing.T, script string) {
	t.Helper()
	stubDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(stubDir, "git"), []byte(script), 0o755))
	t.Setenv("PATH", stubDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestCollectEnvInjection(t *testing.T) {
	ctx := context.Background()

	t.Run("plain payload", func(t *testing.T) {
		clearInjectedDiff(t)
		t.Setenv(EnvDiff, "diff --git a/x b/x\n+injected\n")

		c := NewCollector(t.TempDir(), nopLog())
		p, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.Equal(t, "env", p.BaseRef)
		assert.Contains(t, p.Content, "+injected")
	})

	t.Run("base64 payload wins", func(t *testing.T) {
		clearInjectedDiff(t)
		t.Setenv(EnvDiff, "plain")
		t.Setenv(EnvDiffB64, base64.StdEncoding.EncodeToString([]byte("encoded diff")))

		c := NewCollector(t.TempDir(), nopLog())
		p, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.Equal(t, "encoded diff", p.Content)
	})

	t.Run("undecodable base64 falls back to plain", func(t *testing.T) {
		clearInjectedDiff(t)
		t.Setenv(EnvDiff, "plain")
		t.Setenv(EnvDiffB64, "%%% not base64 %%%")

		c := NewCollector(t.TempDir(), nopLog())
		p, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.Equal(t, "plain", p.Content)
	})

	t.Run("oversized payload is truncated", func(t *testing.T) {
		clearInjectedDiff(t)
		t.Setenv(EnvDiff, strings.Repeat("x", MaxPayloadBytes+10))

		c := NewCollector(t.TempDir(), nopLog())
		p, err := c.Collect(ctx)
		require.NoError(t, err)
		assert.True(t, p.Truncated)
		assert.Len(t, p.Content, MaxPayloadBytes)
	})
}

func TestCollectNoRepository(t *testing.T) {
	clearInjectedDiff(t)

	c := NewCollector(t.TempDir(), nopLog())
	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, ErrNoRepository)
	assert.True(t, IsUnavailable(err))
}

func TestCollectCleanWorktree(t *testing.T) {
	clearInjectedDiff(t)
	dir := initRepo(t)

	c := NewCollector(dir, nopLog())
	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, ErrNoChanges)
	assert.True(t, IsUnavailable(err))
}

func TestCollectAdvancesBaseline(t *testing.T) {
	clearInjectedDiff(t)
	ctx := context.Background()
	dir := initRepo(t)
	stubGit(t, headDiffStub)

	main := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(main, []byte("package main\n// changed\n"), 0o644))

	c := NewCollector(dir, nopLog())

	p, err := c.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, p.BaseRef, 8)
	assert.Contains(t, p.Content, "+// changed")
	assert.False(t, p.Truncated)

	// The same dirty state compares equal to the advanced baseline.
	_, err = c.Collect(ctx)
	require.ErrorIs(t, err, ErrNoChanges)

	// A further edit moves the fingerprint again.
	require.NoError(t, os.WriteFile(main, []byte("package main\n// changed twice\n"), 0o644))
	_, err = c.Collect(ctx)
	require.NoError(t, err)

	// Reset clears the pointer so the unchanged worktree collects again.
	c.Reset()
	_, err = c.Collect(ctx)
	require.NoError(t, err)
}

func TestCollectFallsBackWhenHeadUnresolvable(t *testing.T) {
	clearInjectedDiff(t)
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.go"), []byte("package fresh\n"), 0o644))
	stubGit(t, fallbackDiffStub)

	c := NewCollector(dir, nopLog())
	p, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "worktree", p.BaseRef)
	assert.Contains(t, p.Content, "+package fresh")
}

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no repository", ErrNoRepository, true},
		{"no changes", ErrNoChanges, true},
		{"wrapped no changes", fmt.Errorf("collect: %w", ErrNoChanges), true},
		{"other error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}
