// internal/protocol/inbound.go
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jason-s-yu/chessroom/internal/rules"
)

// JoinRoom asks to enter (and lazily create) a room.
type JoinRoom struct {
	Room string
}

// MakeMove proposes a move in a room the sender is seated in.
type MakeMove struct {
	Room string
	Move rules.Move
}

// JoinChat binds a user id to the sending connection.
type JoinChat struct {
	UserID string
}

// SendMessage is a direct chat message between two users.
type SendMessage struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// InvitePlayer asks the server to notify ToUser that FromUser wants a game.
type InvitePlayer struct {
	FromUser string `json:"fromUser"`
	ToUser   string `json:"toUser"`
}

func (JoinRoom) Event() string     { return EventJoinRoom }
func (MakeMove) Event() string     { return EventMakeMove }
func (JoinChat) Event() string     { return EventJoinChat }
func (SendMessage) Event() string  { return EventSendMessage }
func (InvitePlayer) Event() string { return EventInvitePlayer }

func (JoinRoom) inbound()     {}
func (MakeMove) inbound()     {}
func (JoinChat) inbound()     {}
func (SendMessage) inbound()  {}
func (InvitePlayer) inbound() {}

func decodeJoinRoom(data json.RawMessage) (Inbound, error) {
	room, err := stringOrField(data, "room", "roomId")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EventJoinRoom, err)
	}
	return JoinRoom{Room: room}, nil
}

func decodeMakeMove(data json.RawMessage) (Inbound, error) {
	var body struct {
		Room   string          `json:"room"`
		RoomID string          `json:"roomId"`
		Move   json.RawMessage `json:"move"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, EventMakeMove, err)
	}
	room := strings.TrimSpace(body.Room)
	if room == "" {
		room = strings.TrimSpace(body.RoomID)
	}
	if room == "" {
		return nil, fmt.Errorf("%w: %s: missing room", ErrInvalidPayload, EventMakeMove)
	}

	mv, err := decodeMove(body.Move)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EventMakeMove, err)
	}
	return MakeMove{Room: room, Move: mv}, nil
}

// decodeMove accepts either a notation string ("e2e4", "Nf3") or an object
// with from/to/promotion squares.
func decodeMove(raw json.RawMessage) (rules.Move, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return rules.Move{}, fmt.Errorf("%w: missing move", ErrInvalidPayload)
	}

	var mv rules.Move
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return rules.Move{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		mv.Notation = s
	} else if err := json.Unmarshal(raw, &mv); err != nil {
		return rules.Move{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if mv.Empty() {
		return rules.Move{}, fmt.Errorf("%w: empty move", ErrInvalidPayload)
	}
	return mv, nil
}

func decodeJoinChat(data json.RawMessage) (Inbound, error) {
	userID, err := stringOrField(data, "userId")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EventJoinChat, err)
	}
	return JoinChat{UserID: userID}, nil
}

func decodeSendMessage(data json.RawMessage) (Inbound, error) {
	var msg SendMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, EventSendMessage, err)
	}
	msg.Sender = strings.TrimSpace(msg.Sender)
	msg.Receiver = strings.TrimSpace(msg.Receiver)
	if msg.Sender == "" || msg.Receiver == "" || strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("%w: %s: sender, receiver and text are required", ErrInvalidPayload, EventSendMessage)
	}
	return msg, nil
}

func decodeInvitePlayer(data json.RawMessage) (Inbound, error) {
	var inv InvitePlayer
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, EventInvitePlayer, err)
	}
	inv.FromUser = strings.TrimSpace(inv.FromUser)
	inv.ToUser = strings.TrimSpace(inv.ToUser)
	if inv.FromUser == "" || inv.ToUser == "" {
		return nil, fmt.Errorf("%w: %s: fromUser and toUser are required", ErrInvalidPayload, EventInvitePlayer)
	}
	return inv, nil
}

// stringOrField reads either a bare JSON string or the first non-empty of the
// named string fields of an object.
func stringOrField(data json.RawMessage, fields ...string) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if s = strings.TrimSpace(s); s == "" {
			return "", fmt.Errorf("%w: empty value", ErrInvalidPayload)
		}
		return s, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	for _, f := range fields {
		v, ok := obj[f]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("%w: field %s: %v", ErrInvalidPayload, f, err)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: expected one of %v", ErrInvalidPayload, fields)
}
