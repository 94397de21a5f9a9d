package invoker

import "encoding/json"

// Kind classifies why an invocation failed.
type Kind string

// Failure classifications, surfaced as the metrics outcome label and in
// operator-facing failure envelopes.
const (
	KindSpawn         Kind = "spawn"
	KindTimeout       Kind = "timeout"
	KindCanceled      Kind = "canceled"
	KindInvalidOutput Kind = "invalid_output"
	KindWorker        Kind = "worker"
	KindInternal      Kind = "internal"
)

// Error is a classified invocation failure. Message is safe to relay to
// callers; Details carries diagnostics for operator-side debugging.
type Error struct {
	Kind        Kind
	Message     string
	ExitCode    int
	Output      string
	Diagnostics string
	Document    json.RawMessage

	err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Details assembles the debugging context appropriate for the failure kind:
// raw output and diagnostics for extraction failures, the recovered
// document for worker-reported ones. Nothing here echoes configuration.
func (e *Error) Details() any {
	d := make(map[string]any)
	switch e.Kind {
	case KindWorker, KindInternal, KindInvalidOutput:
		d["exit_code"] = e.ExitCode
	}
	if e.Output != "" {
		d["stdout"] = e.Output
	}
	if e.Diagnostics != "" {
		d["stderr"] = e.Diagnostics
	}
	if len(e.Document) > 0 {
		d["document"] = e.Document
	}
	if e.err != nil && e.Kind != KindWorker {
		d["cause"] = e.err.Error()
	}
	if len(d) == 0 {
		return e.Message
	}
	return d
}
