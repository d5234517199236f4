package person

import "time"

// Person is a CRM contact mirrored locally. A row is unique per
// (party_id, party_number) pair; both halves may be absent for
// contacts created from a bare phone number.
type Person struct {
	ID          int64     `json:"id"`
	PartyID     *int64    `json:"party_id,omitempty"`
	PartyNumber *int64    `json:"party_number,omitempty"`
	Phone       string    `json:"phone"`
	MessagingID *string   `json:"messaging_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasParty reports whether the person carries at least one CRM key.
func (p *Person) HasParty() bool {
	return p.PartyID != nil || p.PartyNumber != nil
}
