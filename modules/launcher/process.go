package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/GoCodeAlone/desktopagent/fdc3"
)

// AppTypeNative marks directory records started as OS processes.
const AppTypeNative = "native"

// ProcessRunner starts native apps as child processes. The FDC3 startup
// parameters are passed as environment variables: Fdc3InstanceId becomes
// FDC3_INSTANCE_ID and so on.
type ProcessRunner struct {
	workDir     string
	gracePeriod time.Duration
	isolateEnv  bool
}

// NewProcessRunner creates a runner from cfg.
func NewProcessRunner(cfg *Config) *ProcessRunner {
	return &ProcessRunner{
		workDir:     cfg.WorkDir,
		gracePeriod: cfg.StopGracePeriod,
		isolateEnv:  cfg.IsolateEnv,
	}
}

func (r *ProcessRunner) Name() string { return AppTypeNative }

// Accepts reports whether the app is native or declares an executable.
func (r *ProcessRunner) Accepts(app *fdc3.AppDescriptor) bool {
	return app.Type == AppTypeNative || (app.Type == "" && app.Details.Path != "")
}

func (r *ProcessRunner) Start(_ context.Context, inst *Instance, exited func(error)) (Handle, error) {
	details := inst.App.Details
	if details.Path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoExecutable, inst.AppID)
	}

	path := details.Path
	if !filepath.IsAbs(path) && r.workDir != "" {
		path = filepath.Join(r.workDir, path)
	}

	cmd := exec.Command(path, details.Arguments...)
	cmd.Dir = r.workDir
	cmd.Env = r.environment(details.Env, inst.Params)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	h := &processHandle{cmd: cmd, grace: r.gracePeriod, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		close(h.done)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && h.stopRequested.Load() {
			err = nil
		}
		exited(err)
	}()
	return h, nil
}

// environment merges the inherited, declared and startup variables. Later
// sources win.
func (r *ProcessRunner) environment(declared, params map[string]string) []string {
	env := map[string]string{}
	if !r.isolateEnv {
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok {
				env[k] = v
			}
		}
	}
	for k, v := range declared {
		env[k] = v
	}
	for k, v := range params {
		env[EnvName(k)] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// EnvName converts a startup parameter name to its environment variable
// name, e.g. Fdc3OpenedAppContextId to FDC3_OPENED_APP_CONTEXT_ID.
func EnvName(param string) string {
	var b strings.Builder
	runes := []rune(param)
	for i, c := range runes {
		if i > 0 && unicode.IsUpper(c) && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(c))
	}
	return b.String()
}

type processHandle struct {
	cmd           *exec.Cmd
	grace         time.Duration
	done          chan struct{}
	stopRequested atomic.Bool
}

// Stop interrupts the process and kills it when it outlives the grace
// period.
func (h *processHandle) Stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.stopRequested.Store(true)
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		return h.kill()
	}

	timer := time.NewTimer(h.grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return h.kill()
	case <-ctx.Done():
		return h.kill()
	}
}

func (h *processHandle) kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
