package sale

// Event carries the CRM payload that starts an outbound sale flow.
// Document is the only mandatory field; everything else is best effort
// data the CRM happened to have on record.
type Event struct {
	Document       string `json:"document" binding:"required"`
	PartyID        *int64 `json:"party_id"`
	PartyNumber    *int64 `json:"party_number"`
	Phone          string `json:"phone"`
	RepPartyID     *int64 `json:"rep_party_id"`
	RepPartyNumber *int64 `json:"rep_party_number"`
	ProgramCode    string `json:"program_code"`
	LeadID         string `json:"lead_id"`
	ConversationID string `json:"conversation_id"`
}

// Failure codes reported in Outcome. They mirror the points where the
// flow can abort before a conversation is usable.
const (
	FailNoUsableIdentity = "no_usable_identity"
	FailIdentityUnsynced = "identity_unsynced"
	FailPhoneUpdate      = "phone_update_failed"
	FailRepUnknown       = "rep_unknown"
	FailGateway          = "gateway_error"
)

// Outcome summarizes what the sale flow did.
type Outcome struct {
	Success          bool   `json:"success"`
	FailureCode      string `json:"failure_code,omitempty"`
	Message          string `json:"message,omitempty"`
	PersonID         int64  `json:"person_id,omitempty"`
	RemotePersonID   string `json:"remote_person_id,omitempty"`
	ConversationID   string `json:"conversation_id,omitempty"`
	ConversationNew  bool   `json:"conversation_new"`
	Phone            string `json:"phone,omitempty"`
	PhoneUpdated     bool   `json:"phone_updated"`
	Annotation       string `json:"annotation,omitempty"`
	WelcomeSent      bool   `json:"welcome_sent"`
	NotificationSent bool   `json:"notification_sent"`
}
