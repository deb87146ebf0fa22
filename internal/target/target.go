package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultWarmUp        = time.Second
	defaultProbeInterval = 50 * time.Millisecond
	maxProbeInterval     = 500 * time.Millisecond
	defaultGracePeriod   = 5 * time.Second
)

// Spec identifies one server under test.
type Spec struct {
	Name    string   `json:"name" yaml:"name"`
	Command []string `json:"command" yaml:"command"` // argv; no shell parsing
	Dir     string   `json:"dir,omitempty" yaml:"dir,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"` // appended to the inherited environment
	Address string   `json:"address" yaml:"address"`             // host:port the sessions connect to
}

// LaunchError reports a target that could not be started or never became reachable.
type LaunchError struct {
	Target string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Target, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Options configure the Manager.
type Options struct {
	WarmUp        time.Duration // fixed wait used when ProbeTimeout is 0
	ProbeTimeout  time.Duration // budget for the readiness probe
	ProbeInterval time.Duration // first retry delay of the probe
	GracePeriod   time.Duration // wait after SIGTERM before SIGKILL
	Output        io.Writer     // receives target stdout/stderr (default discard)
	Logger        *slog.Logger
}

func (o *Options) normalize() {
	if o.WarmUp <= 0 {
		o.WarmUp = defaultWarmUp
	}
	if o.ProbeTimeout < 0 {
		o.ProbeTimeout = 0
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = defaultProbeInterval
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = defaultGracePeriod
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Manager starts and stops target processes.
type Manager struct {
	opt Options
}

func New(opt Options) *Manager {
	opt.normalize()
	return &Manager{opt: opt}
}

// Handle is a live target process.
type Handle struct {
	spec   Spec
	cmd    *exec.Cmd
	grace  time.Duration
	logger *slog.Logger

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// Start spawns spec.Command in spec.Dir and returns once the target
// accepts TCP connections on spec.Address. If the target never becomes
// reachable the process is stopped and a *LaunchError is returned.
func (m *Manager) Start(ctx context.Context, spec Spec) (*Handle, error) {
	if len(spec.Command) == 0 {
		return nil, &LaunchError{Target: spec.Name, Err: errors.New("empty command")}
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = m.opt.Output
	cmd.Stderr = m.opt.Output

	logger := m.opt.Logger.With(slog.String("target", spec.Name))
	logger.InfoContext(ctx, "starting target",
		slog.Any("command", spec.Command),
		slog.String("dir", spec.Dir),
		slog.String("address", spec.Address),
	)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Target: spec.Name, Err: err}
	}

	h := &Handle{
		spec:   spec,
		cmd:    cmd,
		grace:  m.opt.GracePeriod,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	start := time.Now()
	if err := m.awaitReady(ctx, h); err != nil {
		if stopErr := h.Stop(context.Background()); stopErr != nil {
			logger.Warn("failed to stop unready target", slog.String("error", stopErr.Error()))
		}
		return nil, &LaunchError{Target: spec.Name, Err: err}
	}

	logger.InfoContext(ctx, "target ready",
		slog.Int("pid", cmd.Process.Pid),
		slog.Duration("startup", time.Since(start)),
	)
	return h, nil
}

func (m *Manager) awaitReady(ctx context.Context, h *Handle) error {
	if m.opt.ProbeTimeout <= 0 {
		timer := time.NewTimer(m.opt.WarmUp)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return fmt.Errorf("process exited during warm-up: %v", h.exitReason())
		case <-timer.C:
			return nil
		}
	}

	if h.spec.Address == "" {
		return errors.New("readiness probe needs an address")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opt.ProbeInterval
	b.MaxInterval = maxProbeInterval

	dialer := &net.Dialer{Timeout: m.opt.ProbeInterval * 4}
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		select {
		case <-h.done:
			return struct{}{}, backoff.Permanent(fmt.Errorf("process exited before accepting connections: %v", h.exitReason()))
		default:
		}
		conn, err := dialer.DialContext(ctx, "tcp", h.spec.Address)
		if err != nil {
			return struct{}{}, err
		}
		_ = conn.Close()
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(m.opt.ProbeTimeout))
	if err != nil {
		return fmt.Errorf("not reachable at %s after %d probes: %w", h.spec.Address, attempts, err)
	}
	return nil
}

// Stop sends SIGTERM, waits up to the grace period, then kills the
// process and waits for it to exit. It is safe to call on a nil handle,
// more than once, or after the process already exited.
func (h *Handle) Stop(ctx context.Context) error {
	if h == nil || h.cmd == nil || h.cmd.Process == nil || h.done == nil {
		return nil
	}
	h.stopOnce.Do(func() {
		h.stopErr = h.stop(ctx)
	})
	return h.stopErr
}

func (h *Handle) stop(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.logger.Info("stopping target", slog.Int("pid", h.cmd.Process.Pid))
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-h.done
			return nil
		}
		h.logger.Debug("terminate signal failed, killing", slog.String("error", err.Error()))
	}

	timer := time.NewTimer(h.grace)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	h.logger.Warn("target ignored terminate signal, killing", slog.Duration("grace", h.grace))
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", h.spec.Name, err)
	}
	<-h.done
	return nil
}

// Exited reports whether the process has terminated.
func (h *Handle) Exited() bool {
	if h == nil || h.done == nil {
		return true
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// PID returns the process id, or 0 for a handle without a process.
func (h *Handle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) exitReason() error {
	if h.waitErr == nil {
		return errors.New("exit status 0")
	}
	return h.waitErr
}
