package http

import (
	"github.com/GriffinCanCode/shellhost/internal/domain/window"
	"github.com/GriffinCanCode/shellhost/internal/providers/terminal"
	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// CreateWindowRequest opens a window. Zero size and empty profile select defaults.
type CreateWindowRequest struct {
	Width   int    `json:"width" binding:"gte=0,lte=16384"`
	Height  int    `json:"height" binding:"gte=0,lte=16384"`
	Profile string `json:"profile" binding:"max=64"`
}

// CreateWindowResponse names the new window.
type CreateWindowResponse struct {
	Ref     id.Ref          `json:"ref"`
	Channel string          `json:"channel"`
	Size    window.SizeSpec `json:"size"`
	Profile string          `json:"profile"`
}

// ListWindowsResponse lists open windows in creation order.
type ListWindowsResponse struct {
	Windows []window.WindowInfo `json:"windows"`
	Count   int                 `json:"count"`
}

// MoveShellRequest names the target window of a move.
type MoveShellRequest struct {
	To string `json:"to" binding:"required"`
}

// MoveShellResponse describes the moved shell.
type MoveShellResponse struct {
	From  string             `json:"from"`
	To    string             `json:"to"`
	Shell terminal.ShellInfo `json:"shell"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
