package ledger

// PaymentFilter selects payments of one issued token.
type PaymentFilter struct {
	Currency string
	Issuer   string
}

// Match reports whether tx is a Payment whose amount is an issued amount of
// exactly the tracked currency and issuer. Native amounts never match.
func (f PaymentFilter) Match(tx Transaction) bool {
	if tx.TransactionType != TransactionTypePayment {
		return false
	}
	issued := tx.Amount.Issued
	if issued == nil {
		return false
	}
	return issued.Issuer == f.Issuer && issued.Currency == f.Currency
}
