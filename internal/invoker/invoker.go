// Package invoker owns the lifecycle of one external worker process per
// request: spawn, duplex stream wiring, timeout enforcement and failure
// classification.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solarscan/scanbridge/internal/jsonx"
	"github.com/solarscan/scanbridge/internal/metrics"
)

// DefaultTimeout bounds total invocation wall time when no budget is
// configured.
const DefaultTimeout = 120 * time.Second

// waitDelay bounds pipe draining after the process is killed, so Wait can
// never hang on a child that leaked its stdout to a grandchild.
const waitDelay = 5 * time.Second

// Config controls how the worker process is launched.
type Config struct {
	Executable string
	Args       []string
	Timeout    time.Duration
}

// Invoker runs one worker process per Invoke call. It is safe for
// concurrent use; concurrent invocations are fully independent.
type Invoker struct {
	cfg    Config
	logger *zap.Logger
}

// Result is a successful worker outcome: the structured document recovered
// from stdout, byte-for-byte as emitted, plus the stderr diagnostics text.
type Result struct {
	Document    json.RawMessage
	Diagnostics string
}

// envelope mirrors the mandatory fields of the worker's output document.
// OK is a pointer: success requires the flag to be explicitly true.
type envelope struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

// New constructs an Invoker. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	metrics.Init()
	return &Invoker{cfg: cfg, logger: logger}
}

// Invoke spawns the worker, feeds it the payload on stdin and blocks until
// the process exits, the timeout budget elapses, or the caller's context is
// canceled. Every exit path reaps the process and releases its streams.
func (inv *Invoker) Invoke(ctx context.Context, payload []byte) (*Result, error) {
	start := time.Now()
	metrics.IncInflight()
	defer metrics.DecInflight()

	res, err := inv.run(ctx, payload)

	outcome := "success"
	if err != nil {
		outcome = string(KindInternal)
		var clsErr *Error
		if errors.As(err, &clsErr) {
			outcome = string(clsErr.Kind)
		}
	}
	elapsed := time.Since(start)
	metrics.ObserveInvocation(outcome, elapsed)

	if err != nil {
		inv.logger.Warn("worker invocation failed",
			zap.String("outcome", outcome),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	inv.logger.Info("worker invocation succeeded",
		zap.Duration("elapsed", elapsed),
		zap.Int("document_bytes", len(res.Document)),
	)
	return res, nil
}

func (inv *Invoker) run(ctx context.Context, payload []byte) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.cfg.Executable, inv.cfg.Args...)
	// The worker reads its own configuration from the inherited environment.
	cmd.Env = os.Environ()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Kind: KindSpawn, Message: fmt.Sprintf("open worker stdin: %v", err), err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: KindSpawn, Message: fmt.Sprintf("spawn worker: %v", err), err: err}
	}
	inv.logger.Debug("worker spawned",
		zap.String("executable", inv.cfg.Executable),
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("payload_bytes", len(payload)),
	)

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close() //nolint:errcheck // close after write failure is moot
		if _, err := stdin.Write(payload); err != nil {
			return fmt.Errorf("write worker stdin: %w", err)
		}
		return nil
	})

	waitErr := cmd.Wait()
	if writeErr := g.Wait(); writeErr != nil {
		// A worker may legitimately exit before draining its stdin; the
		// write failure only matters if no usable result came back.
		inv.logger.Warn("worker stdin write interrupted", zap.Error(writeErr))
	}

	rawOut := stdout.String()
	diagnostics := stderr.String()

	// Timeout wins over anything the worker managed to emit.
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return nil, &Error{
			Kind:        KindTimeout,
			Message:     fmt.Sprintf("worker timed out after %s", inv.cfg.Timeout),
			Diagnostics: diagnostics,
		}
	}
	if ctx.Err() != nil {
		return nil, &Error{
			Kind:        KindCanceled,
			Message:     "invocation canceled by caller",
			Diagnostics: diagnostics,
			err:         ctx.Err(),
		}
	}

	exitCode := cmd.ProcessState.ExitCode()
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, &Error{
			Kind:        KindInternal,
			Message:     fmt.Sprintf("wait for worker: %v", waitErr),
			ExitCode:    exitCode,
			Output:      rawOut,
			Diagnostics: diagnostics,
			err:         waitErr,
		}
	}

	doc, ok := jsonx.Extract(rawOut)
	if !ok {
		return nil, &Error{
			Kind:        KindInvalidOutput,
			Message:     "Invalid structured output",
			ExitCode:    exitCode,
			Output:      rawOut,
			Diagnostics: diagnostics,
		}
	}

	var env envelope
	if err := json.Unmarshal(doc, &env); err != nil {
		return nil, &Error{
			Kind:        KindInternal,
			Message:     fmt.Sprintf("decode worker result: %v", err),
			ExitCode:    exitCode,
			Output:      rawOut,
			Diagnostics: diagnostics,
			err:         err,
		}
	}

	if exitCode == 0 && env.OK != nil && *env.OK {
		return &Result{Document: doc, Diagnostics: diagnostics}, nil
	}

	msg := env.Error
	if msg == "" {
		msg = "Worker reported failure"
	}
	return nil, &Error{
		Kind:        KindWorker,
		Message:     msg,
		ExitCode:    exitCode,
		Document:    doc,
		Diagnostics: diagnostics,
	}
}
