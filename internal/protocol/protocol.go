package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Action names a protocol message.
type Action string

const (
	ActionCreate     Action = "create"      // display -> controller
	ActionCreateFail Action = "create-fail" // controller -> display
	ActionInit       Action = "init"        // both; controller confirms a shell, display announces itself
	ActionData       Action = "data"        // controller -> display
	ActionInput      Action = "input"       // display -> controller
	ActionAdd        Action = "add"         // controller -> display
	ActionLosing     Action = "losing"      // controller -> display
	ActionMove       Action = "move"        // reserved
	ActionClose      Action = "close"       // controller -> display on window teardown
	ActionDiscard    Action = "discard"     // display -> controller
	ActionExit       Action = "exit"        // controller -> display
)

var (
	// ErrUnknownAction is returned when an envelope names an action outside the protocol.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformed is returned when an envelope payload does not match its action.
	ErrMalformed = errors.New("malformed payload")
)

// Envelope is the wire unit of the protocol.
type Envelope struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Marshal encodes an envelope for the wire.
func Marshal(env Envelope) ([]byte, error) {
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}
	return sonic.Marshal(env)
}

// Unmarshal decodes an envelope from the wire.
func Unmarshal(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Action == "" {
		return Envelope{}, fmt.Errorf("%w: missing action", ErrMalformed)
	}
	return env, nil
}

func newEnvelope(action Action, payload any) Envelope {
	data, err := sonic.Marshal(payload)
	if err != nil {
		// Payloads are fixed structs, strings and byte slices.
		panic(fmt.Sprintf("protocol: encode %s: %v", action, err))
	}
	return Envelope{Action: action, Data: data}
}

func decodePayload(env Envelope, into any) error {
	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if err := sonic.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, env.Action, err)
	}
	return nil
}
