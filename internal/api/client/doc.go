// Package client is a typed HTTP client for the window control API.
//
// Requests are retried on connection errors and retryable statuses, and
// decoded with sonic. Non-2xx responses come back as *APIError, which
// matches ErrNotFound and ErrBadRequest through errors.Is.
package client
