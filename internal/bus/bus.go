// Package bus carries the capture pipeline's inter-context messages. The
// page hook, the relay processor, and the background miner mirror the
// extension's three isolated execution contexts: they share no memory and
// talk only through these channels.
package bus

import (
	"encoding/json"

	"apex/internal/model"
)

// Message type tags. These are part of the wire protocol between contexts
// and must not change.
const (
	TypeAuthUpdate  = "MINER_AUTH_UPDATE"
	TypeRawCapture  = "APEX_RAW_CAPTURE"
	TypeTriggerSync = "APEX_TRIGGER_SYNC"
)

// Message is the envelope posted between contexts. Exactly one of the
// payload fields is set, according to Type.
type Message struct {
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`

	Auth    *model.Credentials `json:"payload,omitempty"`
	Capture *RawCapture        `json:"-"`
}

// RawCapture is an intercepted API response plus its classified action.
type RawCapture struct {
	Payload json.RawMessage `json:"payload"`
	Action  string          `json:"action"`
}

// AuthUpdate builds a credential-update message as emitted by the hook.
func AuthUpdate(creds model.Credentials) Message {
	return Message{Type: TypeAuthUpdate, Source: "hook", Auth: &creds}
}

// Capture builds a raw-capture message as emitted by the hook.
func Capture(payload json.RawMessage, action string) Message {
	return Message{Type: TypeRawCapture, Source: "hook", Capture: &RawCapture{Payload: payload, Action: action}}
}

// TriggerSync builds a sync-request message for the background context.
func TriggerSync() Message {
	return Message{Type: TypeTriggerSync}
}

// Bus joins the three contexts. Page is written by the hook and read by the
// processor; Background is written by the processor and read by the miner.
// Within one channel, delivery order matches send order; across channels
// there is no global ordering.
type Bus struct {
	Page       chan Message
	Background chan Message
}

func New() *Bus {
	return &Bus{
		Page:       make(chan Message, 64),
		Background: make(chan Message, 64),
	}
}

// PostPage publishes without blocking the page context; if the processor is
// hopelessly behind, the capture is dropped (it can be re-captured later).
func (b *Bus) PostPage(m Message) bool {
	select {
	case b.Page <- m:
		return true
	default:
		return false
	}
}

// PostBackground publishes to the background context, same drop semantics.
func (b *Bus) PostBackground(m Message) bool {
	select {
	case b.Background <- m:
		return true
	default:
		return false
	}
}
