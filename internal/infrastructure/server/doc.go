// Package server assembles the shellhost HTTP server: the window registry,
// the display hub, REST and stream routes, middleware and metrics.
package server
