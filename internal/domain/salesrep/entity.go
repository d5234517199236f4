package salesrep

import (
	"strings"
	"time"
)

// SalesRep is a seller mirrored from the messaging platform's agent
// directory. party_id is the unique CRM key.
type SalesRep struct {
	ID          int64     `json:"id"`
	PartyID     int64     `json:"party_id"`
	PartyNumber int64     `json:"party_number"`
	ExternalID  *string   `json:"external_id,omitempty"`
	Email       *string   `json:"email,omitempty"`
	FirstName   *string   `json:"first_name,omitempty"`
	LastName    *string   `json:"last_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName joins first and last name, skipping missing parts.
func (r *SalesRep) FullName() string {
	parts := make([]string, 0, 2)
	if r.FirstName != nil && *r.FirstName != "" {
		parts = append(parts, *r.FirstName)
	}
	if r.LastName != nil && *r.LastName != "" {
		parts = append(parts, *r.LastName)
	}
	return strings.Join(parts, " ")
}
