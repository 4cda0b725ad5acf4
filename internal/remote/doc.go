// Package remote is the display side of a window channel.
//
// A Router mirrors the controller's set of shells as Proxies. It asks the
// controller for shells, forwards user input and applies incoming events to the
// right proxy: output is appended to the proxy's buffer so that a view rendered
// later can replay everything the shell has printed. Presentation code
// subscribes through Callbacks and never touches the channel directly.
package remote
