package message

import "time"

// Record kinds and directions. Notes always carry direction INTERNAL.
const (
	KindMessage = "MESSAGE"
	KindNote    = "NOTE"

	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
	DirectionInternal = "INTERNAL"
)

// Record is a locally mirrored message or agent note. RemoteMessageID
// is the platform's id and is what makes re-syncs idempotent; RemoteTS
// is the platform timestamp used for chronological ordering and may be
// missing when the platform sent an unparseable value.
type Record struct {
	ID              int64      `json:"id"`
	ConversationID  string     `json:"conversation_id"`
	Kind            string     `json:"kind"`
	Content         *string    `json:"content,omitempty"`
	Direction       *string    `json:"direction,omitempty"`
	Sender          *string    `json:"sender,omitempty"`
	RemoteMessageID *string    `json:"remote_message_id,omitempty"`
	RemoteTS        *time.Time `json:"remote_ts,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Before reports whether m precedes other in the mirrored timeline:
// remote timestamps ascending, records without one sorting last.
func (m *Record) Before(other *Record) bool {
	switch {
	case m.RemoteTS == nil:
		return false
	case other.RemoteTS == nil:
		return true
	default:
		return m.RemoteTS.Before(*other.RemoteTS)
	}
}
