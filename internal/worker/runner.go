package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/clapval/internal/harness"
	"github.com/roach88/clapval/internal/result"
)

const (
	// DefaultTimeout bounds a single worker process.
	DefaultTimeout = 30 * time.Second

	// exitGrace is how long a worker may take to exit after it reported
	// its result.
	exitGrace = 5 * time.Second

	stderrTailSize = 4 << 10
)

// Runner executes requests in fresh worker processes, one per request, so
// that a crashing or hanging plugin cannot take the host down with it.
type Runner struct {
	command []string
	env     []string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *slog.Logger

	// onStart, if set, sees the pid of every worker right after it starts.
	onStart func(pid int)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCommand sets the argv used to start a worker. It defaults to the
// running executable with the "worker" argument.
func WithCommand(argv ...string) RunnerOption {
	return func(r *Runner) {
		r.command = append([]string(nil), argv...)
	}
}

// WithEnv appends "KEY=value" entries to the worker environment.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// WithTimeout bounds each worker process. Non-positive values are ignored.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMaxWorkers caps the number of live worker processes.
func WithMaxWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger for worker lifecycle messages.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner. Without WithCommand the worker is the
// current executable.
func NewRunner(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sem == nil {
		r.sem = semaphore.NewWeighted(int64(defaultMaxWorkers()))
	}
	if len(r.command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker executable: %w", err)
		}
		r.command = []string{exe, "worker"}
	}
	return r, nil
}

// Timeout returns the per-process time limit.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Run executes one test in a worker process. Abnormal worker terminations
// become Crashed or TimedOut outcomes; Run never returns a nil-status
// outcome.
func (r *Runner) Run(ctx context.Context, req harness.Request, progress harness.ProgressFunc) result.Outcome {
	start := time.Now()
	var (
		outcome result.Outcome
		got     bool
		decode  error
	)
	ex, err := r.exchange(ctx, KindRun, req, func(f Frame) bool {
		switch f.Kind {
		case KindProgress:
			var p Progress
			if f.Decode(&p) == nil && progress != nil {
				progress(p.Stage)
			}
		case KindResult:
			decode = f.Decode(&outcome)
			got = decode == nil
			return true
		}
		return false
	})
	if err != nil {
		return r.failed(req, start, err)
	}

	switch {
	case got:
		if !ex.exitedCleanly() {
			r.logger.Warn("worker misbehaved after reporting its result",
				"test", req.Label(), "exit", ex.describeExit())
		}
		return outcome
	case ex.cancelled:
		outcome = result.Skip("The run was cancelled.")
	case ex.timedOut:
		outcome = result.Outcome{
			Status: result.StatusTimedOut,
			Reason: fmt.Sprintf("The test did not finish within %s%s.", r.timeout, ex.lastStage()),
		}
	default:
		reason := fmt.Sprintf("The worker %s%s.", ex.describeExit(), ex.lastStage())
		if decode != nil {
			reason += " Its result could not be decoded: " + decode.Error()
		}
		outcome = result.Outcome{Status: result.StatusCrashed, Reason: reason}
	}
	outcome.TestID = req.TestID
	outcome.Diagnostic = ex.stderr
	outcome.Duration = time.Since(start)
	if tc, ok := harness.Registry().Lookup(req.TestID); ok {
		outcome.Description = tc.Description
	}
	r.logger.Debug("worker finished abnormally", "test", req.Label(), "status", outcome.Status)
	return outcome
}

func (r *Runner) failed(req harness.Request, start time.Time, err error) result.Outcome {
	o := result.Outcome{TestID: req.TestID, Duration: time.Since(start)}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.Status = result.StatusSkipped
		o.Reason = "The run was cancelled."
		return o
	}
	o.Status = result.StatusSetupError
	o.Reason = err.Error()
	return o
}

// Scan reads the plugin descriptors of a module in a worker process.
func (r *Runner) Scan(ctx context.Context, path string) (harness.ScanResult, error) {
	var (
		res     harness.ScanResult
		failure error
		got     bool
	)
	ex, err := r.exchange(ctx, KindScan, ScanRequest{Path: path}, func(f Frame) bool {
		switch f.Kind {
		case KindScanResult:
			failure = f.Decode(&res)
			got = failure == nil
			return true
		case KindError:
			var msg ErrorMessage
			if failure = f.Decode(&msg); failure == nil {
				failure = msg.Err()
			}
			return true
		}
		return false
	})
	switch {
	case err != nil:
		return harness.ScanResult{}, err
	case got:
		return res, nil
	case failure != nil:
		return harness.ScanResult{}, failure
	case ex.cancelled:
		return harness.ScanResult{}, ctx.Err()
	case ex.timedOut:
		return harness.ScanResult{}, fmt.Errorf("scanning %s did not finish within %s", path, r.timeout)
	default:
		return harness.ScanResult{}, fmt.Errorf("the worker scanning %s %s: %s", path, ex.describeExit(),
			strings.TrimSpace(ex.stderr))
	}
}

func defaultMaxWorkers() int {
	return runtime.NumCPU()
}

// exchangeResult describes how a worker process ended.
type exchangeResult struct {
	state     *os.ProcessState
	waitErr   error
	timedOut  bool
	cancelled bool
	stage     string
	stderr    string
}

func (ex *exchangeResult) exitedCleanly() bool {
	return ex.waitErr == nil && ex.state != nil && ex.state.Success()
}

func (ex *exchangeResult) lastStage() string {
	if ex.stage == "" {
		return ""
	}
	return " (last stage: " + ex.stage + ")"
}

func (ex *exchangeResult) describeExit() string {
	if ex.state == nil {
		if ex.waitErr != nil {
			return "could not be waited for: " + ex.waitErr.Error()
		}
		return "ended in an unknown state"
	}
	if desc, ok := signalDescription(ex.state); ok {
		return desc
	}
	if code := ex.state.ExitCode(); code != 0 {
		return fmt.Sprintf("exited with status %d", code)
	}
	return "exited without reporting a result"
}

// exchange starts a worker, sends one request and feeds every reply frame
// to handle until the worker exits. handle returns true once the final
// frame has arrived; the worker then gets exitGrace to terminate.
func (r *Runner) exchange(ctx context.Context, kind Kind, payload any, handle func(Frame) bool) (*exchangeResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}
	defer respR.Close()

	tail := newTailBuffer(stderrTailSize)
	cmd := exec.Command(r.command[0], r.command[1:]...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.ExtraFiles = []*os.File{reqR, respW}
	cmd.Stdout = tail
	cmd.Stderr = tail
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	err = cmd.Start()
	reqR.Close()
	respW.Close()
	if err != nil {
		reqW.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	logger := r.logger.With("pid", cmd.Process.Pid, "request", kind.String())
	logger.Debug("worker started")
	if r.onStart != nil {
		r.onStart(cmd.Process.Pid)
	}

	writeErr := WriteFrame(reqW, kind, payload)
	reqW.Close()
	if writeErr != nil {
		logger.Debug("sending request failed", "error", writeErr)
	}

	frames := make(chan Frame)
	go func() {
		defer close(frames)
		for {
			f, err := ReadFrame(respR)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Debug("reading worker frames stopped", "error", err)
				}
				return
			}
			frames <- f
		}
	}()

	ex := &exchangeResult{}
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

loop:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				break loop
			}
			if f.Kind == KindProgress {
				var p Progress
				if f.Decode(&p) == nil {
					ex.stage = p.Stage
				}
			}
			if handle(f) {
				timer.Reset(exitGrace)
			}
		case <-timer.C:
			ex.timedOut = true
			killGroup(cmd)
			break loop
		case <-ctx.Done():
			ex.cancelled = true
			killGroup(cmd)
			break loop
		}
	}

	ex.waitErr = cmd.Wait()
	ex.state = cmd.ProcessState
	// The reader sees EOF once the process group is gone.
	for range frames {
	}
	ex.stderr = tail.String()
	// A non-zero exit is described by the process state.
	var exitErr *exec.ExitError
	if errors.As(ex.waitErr, &exitErr) {
		ex.waitErr = nil
	}
	logger.Debug("worker exited", "state", ex.state, "timed_out", ex.timedOut, "cancelled", ex.cancelled)
	return ex, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	buf   []byte
	trunc bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.trunc = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.trunc {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
