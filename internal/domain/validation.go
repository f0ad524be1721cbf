package domain

// Synthetic validation statuses produced when no provider answer is used.
const (
	ValidationDisabled    = "validation_disabled"
	ValidationUnavailable = "validation_unavailable"
)

// Validation is the outcome of an email deliverability check.
type Validation struct {
	Valid     bool     `json:"valid"`
	Status    string   `json:"status"`
	SubStatus string   `json:"sub_status,omitempty"`
	Score     *float64 `json:"score,omitempty"`
}
