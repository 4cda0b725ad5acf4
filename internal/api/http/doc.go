// Package http provides the REST control surface for windows.
//
// Endpoints:
//   - POST   /windows                              open a window
//   - GET    /windows                              list open windows and their shells
//   - GET    /windows/:channel                     describe one window
//   - DELETE /windows/:channel                     close a window and kill its shells
//   - POST   /windows/:channel/shells/:ref/move    hand a shell to another window
//   - GET    /health                               liveness and counts
//   - GET    /metrics/json                         metrics snapshot
//
// Displays attach to a window over the WebSocket stream served next to
// these routes; see package ws.
package http
