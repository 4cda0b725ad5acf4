// Package terminal owns spawned shell processes.
//
// A Shell wraps one process started by a Spawner and forwards its raw output
// to the channel it is bound to: an init event the first time output is seen,
// then exactly one data event per chunk read. The binding (emitter, channel,
// remote ref) may be repointed while the process keeps running, which is how a
// shell moves between windows.
//
// Spawners come in two flavours: pseudo-terminals via creack/pty and plain
// pipes with stdout and stderr merged. Profiles name the command to run and can
// be loaded from YAML or TOML files.
package terminal
