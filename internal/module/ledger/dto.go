package ledger

// WriteEntriesRequest is the request body for posting a ledger transaction.
type WriteEntriesRequest struct {
	TransactionID string            `json:"transaction_id" binding:"required"`
	Correction    bool              `json:"correction"`
	Entries       []WriteEntryInput `json:"entries" binding:"required,min=1,dive"`
}

// WriteEntryInput is one posting line of a write request.
type WriteEntryInput struct {
	AccountCode string         `json:"account_code" binding:"required"`
	EntryType   string         `json:"entry_type" binding:"required"`
	Amount      int64          `json:"amount" binding:"required"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// WriteEntriesResponse is the response for a posted transaction.
type WriteEntriesResponse struct {
	TransactionID string `json:"transaction_id"`
	Entries       int    `json:"entries"`
}

// BalancesResponse is the response for the balance query.
type BalancesResponse struct {
	Balances []*Balance `json:"balances"`
}
