// internal/protocol/protocol.go
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownEvent is returned by Decode for an event name outside the inbound set.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload is returned by Decode when the data field does not fit the event.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Event names on the wire.
const (
	EventJoinRoom     = "joinRoom"
	EventJoinGame     = "joinGame" // accepted alias of joinRoom used by older clients
	EventMakeMove     = "makeMove"
	EventJoinChat     = "joinChat"
	EventSendMessage  = "sendMessage"
	EventInvitePlayer = "invitePlayer"

	EventAssignColor    = "assignColor"
	EventGameState      = "gameState"
	EventCheckAlert     = "checkAlert"
	EventGameOver       = "gameOver"
	EventUpdateUsers    = "updateUsers"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Envelope is the JSON frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a validated client event. The set of implementations is closed.
type Inbound interface {
	Event() string
	inbound()
}

// Outbound is a server event. The set of implementations is closed.
type Outbound interface {
	Event() string
	payload() any
}

// Decode parses a raw frame into one of the inbound variants. Payloads are
// validated here so that the dispatcher only ever sees well-formed events.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Event {
	case EventJoinRoom, EventJoinGame:
		return decodeJoinRoom(env.Data)
	case EventMakeMove:
		return decodeMakeMove(env.Data)
	case EventJoinChat:
		return decodeJoinChat(env.Data)
	case EventSendMessage:
		return decodeSendMessage(env.Data)
	case EventInvitePlayer:
		return decodeInvitePlayer(env.Data)
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Encode renders an outbound event as an envelope frame.
func Encode(out Outbound) ([]byte, error) {
	data, err := json.Marshal(out.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", out.Event(), err)
	}
	return json.Marshal(Envelope{Event: out.Event(), Data: data})
}
