package protocol

import (
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// DiagnosticKind classifies an absorbed failure.
type DiagnosticKind string

const (
	// RoutingMiss: an event named a reference or channel nobody owns.
	RoutingMiss DiagnosticKind = "routing_miss"
	// ProtocolViolation: an unknown, malformed or wrong-direction action.
	ProtocolViolation DiagnosticKind = "protocol_violation"
	// SpawnFault: a shell process failed to start.
	SpawnFault DiagnosticKind = "spawn_fault"
	// ProcessFault: a running shell could not be written to or killed.
	ProcessFault DiagnosticKind = "process_fault"
	// DuplicateRef: a create named a remote ref that is already bound.
	DuplicateRef DiagnosticKind = "duplicate_ref"
)

// Diagnostic describes one failure that was absorbed instead of raised.
type Diagnostic struct {
	Kind    DiagnosticKind
	Channel string
	Action  Action
	Ref     id.RemoteRef
	Err     error
}

// DiagnosticSink receives diagnostics. Implementations must not block.
type DiagnosticSink interface {
	Report(Diagnostic)
}

// DiagnosticFunc adapts a function to a DiagnosticSink.
type DiagnosticFunc func(Diagnostic)

// Report calls f(d).
func (f DiagnosticFunc) Report(d Diagnostic) { f(d) }

// NopSink drops every diagnostic.
var NopSink DiagnosticSink = DiagnosticFunc(func(Diagnostic) {})
