package application

import (
	"paysync/internal/domain"
	"paysync/internal/ledger"
)

// Normalized is a payment ready to store, plus what had to be defaulted to
// produce it.
type Normalized struct {
	Payment          domain.Payment
	AmountDefaulted  bool
	TimestampMissing bool
}

// NormalizePayment converts a matched transaction into a stored payment.
// It does not re-check the filter.
func NormalizePayment(tx ledger.Transaction) Normalized {
	value := "0"
	if tx.Amount.Issued != nil {
		if tx.Amount.Issued.Value != "" {
			value = tx.Amount.Issued.Value
		}
	} else if tx.Amount.Drops != "" {
		value = tx.Amount.Drops
	}
	amount := ledger.ParseAmount(value)
	closeTime := ledger.CloseTime(tx.Date)

	return Normalized{
		Payment: domain.Payment{
			LedgerIndex: tx.LedgerIndex,
			Hash:        tx.Hash,
			From:        tx.Account,
			To:          tx.Destination,
			Memo:        ledger.DecodeMemos(tx.Memos),
			Amount:      amount.Value,
			Timestamp:   closeTime.Ptr(),
		},
		AmountDefaulted:  amount.Defaulted,
		TimestampMissing: !closeTime.Valid,
	}
}
