// Command shellhost hosts shell processes behind windows and attaches
// terminal displays to them.
//
// Usage:
//
//	# Run the server (configuration from the environment, flags override)
//	shellhost serve --port 8000 --dev
//
//	# Open a window and attach this terminal as its display
//	shellhost attach --server http://localhost:8000
//
//	# Inspect and manage windows
//	shellhost windows list
//	shellhost windows move event_1 2 event_3
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, every shell is killed
package main
