// Package protocol defines the per-window message protocol spoken between a
// window controller and its display.
//
// Every message is an Envelope {action, data} addressed to one window channel.
// Envelopes decode into a closed set of Event variants, one Go type per action,
// and Dispatch hands each variant to the matching Handler method. Actions that
// are reserved but not yet negotiated (move, close on the controller side) are
// still methods on Handler, so a new variant cannot be dropped silently.
//
// Failures never cross the channel as errors. They become distinct protocol
// events (create-fail) or Diagnostics reported to a DiagnosticSink.
package protocol
