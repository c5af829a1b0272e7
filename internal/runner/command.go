package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aether-platform/aether-lens/internal/strategy"
)

// detailLimit clamps captured command output in results.
const detailLimit = 4 << 10

// CommandRunner executes command strategies through an ExecEnv.
type CommandRunner struct {
	Env    ExecEnv
	Dir    string // working directory for local runs
	DryRun bool
	Log    *zap.SugaredLogger
}

// Run executes one command strategy and never returns an error: every
// outcome, including a command that could not start, becomes a Result.
func (r *CommandRunner) Run(ctx context.Context, strat strategy.Strategy) Result {
	res := Result{
		Strategy:  strat.Name,
		Kind:      string(strategy.KindCommand),
		StartedAt: time.Now(),
	}

	if r.DryRun {
		r.Log.Infow("dry run, command skipped", "strategy", strat.Name, "command", strat.Command)
		res.Status = StatusPassed
		res.Detail = fmt.Sprintf("dry run: would execute %q in %s", strat.Command, r.Env.Describe())
		return res
	}

	name, args := r.Env.Wrap(strat.Command)
	cmd := exec.CommandContext(ctx, name, args...)
	if _, ok := r.Env.(LocalEnv); ok {
		cmd.Dir = r.Dir
	}
	// The shell's children inherit the output pipe; killing only the shell
	// would leave CombinedOutput blocked until they exit. Cancel the whole
	// process group and cap the wait for stragglers.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	r.Log.Debugw("command starting",
		"strategy", strat.Name, "command", strat.Command, "env", r.Env.Describe())
	out, err := cmd.CombinedOutput()
	res.Duration = time.Since(res.StartedAt)
	res.Detail = tail(string(out), detailLimit)

	switch {
	case err == nil:
		res.Status = StatusPassed
	case ctx.Err() != nil:
		res.Status = StatusErrored
		res.Detail = joinDetail(fmt.Sprintf("command timed out after %s", res.Duration.Round(time.Millisecond)), res.Detail)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Status = StatusFailed
			res.Detail = joinDetail(fmt.Sprintf("exit status %d", exitErr.ExitCode()), res.Detail)
		} else {
			res.Status = StatusErrored
			res.Detail = joinDetail(err.Error(), res.Detail)
		}
	}

	r.Log.Debugw("command finished",
		"strategy", strat.Name, "status", string(res.Status), "duration", res.Duration)
	return res
}

func joinDetail(head, body string) string {
	if body == "" {
		return head
	}
	return head + "\n" + body
}

// tail keeps the last limit bytes of s, cutting at a line boundary.
func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	s = s[len(s)-limit:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i+1 < len(s) {
		s = s[i+1:]
	}
	return s
}
