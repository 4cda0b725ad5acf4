// Package ws carries the event protocol over WebSocket.
//
// The controller side is a Hub of Surfaces, one per window. A Surface
// queues envelopes until a display attaches, then writes them in order.
// Handler upgrades GET /windows/:channel/stream, attaches the connection to
// the window's surface and feeds every inbound envelope to the registry.
//
// The display side is a Client: it dials a window's stream, sends envelopes
// and delivers inbound ones in arrival order.
//
// Frames are text messages holding one JSON envelope each:
//
//	{"action": "create", "data": "1"}
//	{"action": "data", "data": {"ref": "1", "data": "aGVsbG8="}}
//
// Example Usage:
//
//	hub := ws.NewHub(ws.Options{QueueLimit: 1024, WriteTimeout: 10 * time.Second})
//	registry := window.NewRegistry(alloc, hub, windowOpts)
//	handler := ws.NewHandler(registry, hub, ws.HandlerOptions{})
//	router.GET("/windows/:channel/stream", handler.HandleStream)
package ws
