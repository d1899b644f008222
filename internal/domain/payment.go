package domain

import "time"

// Payment is a normalized issued-token payment. Rows are keyed by Hash and
// never change once stored.
type Payment struct {
	LedgerIndex int64      `json:"ledger_index"`
	Hash        string     `json:"transaction_hash"`
	From        string     `json:"from_address"`
	To          string     `json:"to_address"`
	Memo        string     `json:"memo"`
	Amount      int64      `json:"amount"`
	Timestamp   *time.Time `json:"transaction_timestamp"`
}
