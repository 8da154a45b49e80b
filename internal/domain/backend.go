package domain

// Requests and results exchanged with the payment backend.

type OptionsRequest struct {
	Link     string   `json:"link"`
	Accounts []string `json:"accounts"`
}

type ActionsRequest struct {
	SessionID string `json:"-"`
	OptionID  string `json:"option_id"`
	Account   string `json:"account"`
}

type ConfirmRequest struct {
	SessionID     string            `json:"-"`
	OptionID      string            `json:"option_id"`
	Account       string            `json:"account"`
	Signature     string            `json:"signature"`
	CollectedData map[string]string `json:"collected_data,omitempty"`
}

type ConfirmStatus string

const (
	ConfirmSucceeded ConfirmStatus = "succeeded"
	ConfirmFailed    ConfirmStatus = "failed"
)

type ConfirmResult struct {
	Status ConfirmStatus `json:"status"`
	TxID   string        `json:"tx_id,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

type TerminalRegistration struct {
	TerminalID string `json:"terminal_id"`
	Merchant   string `json:"merchant,omitempty"`
}

// EventPage is one page of the terminal's event feed. Cursor is passed back
// to fetch the next page.
type EventPage struct {
	Events []PaymentEvent `json:"events"`
	Cursor string         `json:"cursor"`
}
