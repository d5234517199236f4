package conversation

import "time"

// Remote lifecycle states as reported by the messaging platform. A
// conversation is treated as active while in one of the first three.
const (
	StateOpen    = "OPEN"
	StateWaiting = "WAITING"
	StateSolved  = "SOLVED"
	StateClosed  = "CLOSED"
)

// Conversation is one local event row for a remote conversation. Rows
// are append-only: each flow that touches a conversation records a new
// row instead of mutating an old one, so the table doubles as history.
type Conversation struct {
	ID         int64      `json:"id"`
	RemoteID   string     `json:"remote_id"`
	PersonID   *int64     `json:"person_id,omitempty"`
	RepID      *int64     `json:"rep_id,omitempty"`
	State      *string    `json:"state,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	ProgramCode *string   `json:"program_code,omitempty"`
	LeadID     *string    `json:"lead_id,omitempty"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsActiveState reports whether a remote status still accepts traffic.
func IsActiveState(state string) bool {
	switch state {
	case StateOpen, StateWaiting, StateSolved:
		return true
	}
	return false
}
