package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/GriffinCanCode/shellhost/internal/shared/id"
)

// Event is one decoded protocol message. The set of implementations is closed.
type Event interface {
	Action() Action
	envelope() Envelope
}

// Create asks the controller to spawn a shell bound to Ref.
type Create struct {
	Ref id.RemoteRef
}

// CreateFail tells the display that the shell requested as Ref could not be spawned.
type CreateFail struct {
	Ref id.RemoteRef
}

// Init confirms that the shell bound to Ref is alive. An empty Ref is the
// display announcing itself on the channel.
type Init struct {
	Ref id.RemoteRef
}

// Data carries one chunk of shell output.
type Data struct {
	Ref  id.RemoteRef
	Data []byte
}

// Input carries one line of user input for the shell bound to Ref.
type Input struct {
	Ref  id.RemoteRef
	Data string
}

// Add tells the display that the controller has a shell for it.
type Add struct{}

// Losing tells the display that the shell bound to Ref is leaving the window.
type Losing struct {
	Ref id.RemoteRef
}

// Move is reserved for window-level negotiation.
type Move struct {
	Raw json.RawMessage
}

// Close is the window-level teardown signal.
type Close struct {
	Raw json.RawMessage
}

// Discard tells the controller the display no longer wants the shell bound to Ref.
type Discard struct {
	Ref id.RemoteRef
}

// Exit tells the display the shell bound to Ref exited on its own.
type Exit struct {
	Ref  id.RemoteRef
	Code int
}

type refPayload struct {
	Ref  id.RemoteRef `json:"ref"`
	Data []byte       `json:"data"`
}

type inputPayload struct {
	Ref  id.RemoteRef `json:"ref"`
	Data string       `json:"data"`
}

type exitPayload struct {
	Ref  id.RemoteRef `json:"ref"`
	Code int          `json:"code"`
}

func (Create) Action() Action     { return ActionCreate }
func (CreateFail) Action() Action { return ActionCreateFail }
func (Init) Action() Action       { return ActionInit }
func (Data) Action() Action       { return ActionData }
func (Input) Action() Action      { return ActionInput }
func (Add) Action() Action        { return ActionAdd }
func (Losing) Action() Action     { return ActionLosing }
func (Move) Action() Action       { return ActionMove }
func (Close) Action() Action      { return ActionClose }
func (Discard) Action() Action    { return ActionDiscard }
func (Exit) Action() Action       { return ActionExit }

func (e Create) envelope() Envelope     { return newEnvelope(ActionCreate, e.Ref) }
func (e CreateFail) envelope() Envelope { return newEnvelope(ActionCreateFail, e.Ref) }
func (e Losing) envelope() Envelope     { return newEnvelope(ActionLosing, e.Ref) }
func (e Discard) envelope() Envelope    { return newEnvelope(ActionDiscard, e.Ref) }
func (Add) envelope() Envelope          { return newEnvelope(ActionAdd, nil) }

func (e Init) envelope() Envelope {
	if e.Ref == "" {
		return newEnvelope(ActionInit, nil)
	}
	return newEnvelope(ActionInit, e.Ref)
}

func (e Data) envelope() Envelope {
	return newEnvelope(ActionData, refPayload{Ref: e.Ref, Data: e.Data})
}

func (e Input) envelope() Envelope {
	return newEnvelope(ActionInput, inputPayload{Ref: e.Ref, Data: e.Data})
}

func (e Exit) envelope() Envelope {
	return newEnvelope(ActionExit, exitPayload{Ref: e.Ref, Code: e.Code})
}

func (e Move) envelope() Envelope  { return Envelope{Action: ActionMove, Data: e.Raw} }
func (e Close) envelope() Envelope { return Envelope{Action: ActionClose, Data: e.Raw} }

// Encode wraps an event in its wire envelope.
func Encode(ev Event) Envelope {
	return ev.envelope()
}

// Decode turns an envelope into its event variant.
func Decode(env Envelope) (Event, error) {
	switch env.Action {
	case ActionCreate:
		ref, err := decodeRef(env, true)
		return Create{Ref: ref}, err
	case ActionCreateFail:
		ref, err := decodeRef(env, true)
		return CreateFail{Ref: ref}, err
	case ActionInit:
		ref, err := decodeRef(env, false)
		return Init{Ref: ref}, err
	case ActionLosing:
		ref, err := decodeRef(env, true)
		return Losing{Ref: ref}, err
	case ActionDiscard:
		ref, err := decodeRef(env, true)
		return Discard{Ref: ref}, err
	case ActionData:
		var p refPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Ref == "" {
			return nil, fmt.Errorf("%w: %s: missing ref", ErrMalformed, env.Action)
		}
		return Data{Ref: p.Ref, Data: p.Data}, nil
	case ActionInput:
		var p inputPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Ref == "" {
			return nil, fmt.Errorf("%w: %s: missing ref", ErrMalformed, env.Action)
		}
		return Input{Ref: p.Ref, Data: p.Data}, nil
	case ActionExit:
		var p exitPayload
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		if p.Ref == "" {
			return nil, fmt.Errorf("%w: %s: missing ref", ErrMalformed, env.Action)
		}
		return Exit{Ref: p.Ref, Code: p.Code}, nil
	case ActionAdd:
		return Add{}, nil
	case ActionMove:
		return Move{Raw: env.Data}, nil
	case ActionClose:
		return Close{Raw: env.Data}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, string(env.Action))
	}
}

func decodeRef(env Envelope, required bool) (id.RemoteRef, error) {
	var ref *id.RemoteRef
	if err := decodePayload(env, &ref); err != nil {
		return "", err
	}
	if ref == nil || *ref == "" {
		if required {
			return "", fmt.Errorf("%w: %s: missing ref", ErrMalformed, env.Action)
		}
		return "", nil
	}
	return *ref, nil
}
