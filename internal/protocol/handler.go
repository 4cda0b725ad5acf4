package protocol

import "fmt"

// Handler receives decoded events, one method per variant.
type Handler interface {
	OnCreate(Create)
	OnCreateFail(CreateFail)
	OnInit(Init)
	OnData(Data)
	OnInput(Input)
	OnAdd(Add)
	OnLosing(Losing)
	OnMove(Move)
	OnClose(Close)
	OnDiscard(Discard)
	OnExit(Exit)
}

// Dispatch calls the Handler method matching the event's variant.
func Dispatch(ev Event, h Handler) {
	switch e := ev.(type) {
	case Create:
		h.OnCreate(e)
	case CreateFail:
		h.OnCreateFail(e)
	case Init:
		h.OnInit(e)
	case Data:
		h.OnData(e)
	case Input:
		h.OnInput(e)
	case Add:
		h.OnAdd(e)
	case Losing:
		h.OnLosing(e)
	case Move:
		h.OnMove(e)
	case Close:
		h.OnClose(e)
	case Discard:
		h.OnDiscard(e)
	case Exit:
		h.OnExit(e)
	default:
		// Unreachable: Event cannot be implemented outside this package.
		panic(fmt.Sprintf("protocol: unhandled event %T", ev))
	}
}
