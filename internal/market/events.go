package market

// Event is a notable marketplace occurrence, kept in a ring buffer and
// persisted to the event log.
type Event struct {
	Hour        uint64 `json:"hour" db:"hour"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "search", "sale", "negotiation", "expiry", ...
}
