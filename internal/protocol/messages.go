// Package protocol defines the websocket chat frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/skilldash/internal/skill"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatTurn        MessageType = "chat.turn"
	TypeChatReset       MessageType = "chat.reset"
	TypeVoiceTranscript MessageType = "voice.transcript"

	TypeSessionReady MessageType = "session.ready"
	TypeChatReply    MessageType = "chat.reply"
	TypeVoiceDraft   MessageType = "voice.draft"
	TypeErrorEvent   MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatTurn submits one user message. The server owns the history.
type ChatTurn struct {
	Type    MessageType `json:"type"`
	TurnID  string      `json:"turn_id,omitempty"`
	Message string      `json:"message"`
}

// ChatReset clears the conversation history and the draft.
type ChatReset struct {
	Type MessageType `json:"type"`
}

type VoiceTranscript struct {
	Type       MessageType `json:"type"`
	TurnID     string      `json:"turn_id,omitempty"`
	Transcript string      `json:"transcript"`
}

type SessionReady struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	MaxTurns  int         `json:"max_turns"`
}

// ChatReply carries the assistant reply, the fields revealed this turn
// and the draft with every update so far merged in.
type ChatReply struct {
	Type      MessageType   `json:"type"`
	SessionID string        `json:"session_id"`
	TurnID    string        `json:"turn_id,omitempty"`
	Message   string        `json:"message"`
	SkillData *skill.Update `json:"skill_data"`
	Draft     skill.Draft   `json:"draft"`
}

type VoiceDraft struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id,omitempty"`
	Draft     skill.Draft `json:"draft"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatTurn:
		var msg ChatTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid chat.turn: message is required")
		}
		return msg, nil
	case TypeChatReset:
		return ChatReset{Type: TypeChatReset}, nil
	case TypeVoiceTranscript:
		var msg VoiceTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Transcript) == "" {
			return nil, errors.New("invalid voice.transcript: transcript is required")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
