package ledger

import (
	"bytes"
	"encoding/json"
)

// TransactionTypePayment is the only transaction type the synchronizer keeps.
const TransactionTypePayment = "Payment"

// LedgerIndexMax asks rippled for everything up to the most recent validated ledger.
const LedgerIndexMax int64 = -1

// AccountTxRequest describes one account_tx page request.
type AccountTxRequest struct {
	Account        string
	LedgerIndexMin int64
	Limit          int
	Marker         json.RawMessage
}

// AccountTxPage is one page of account_tx results.
type AccountTxPage struct {
	Account        string
	LedgerIndexMin int64
	LedgerIndexMax int64
	Transactions   []AccountTxEntry
	Marker         json.RawMessage
}

// HasMarker reports whether the server handed back a continuation marker.
func (p AccountTxPage) HasMarker() bool {
	return !IsEmptyMarker(p.Marker)
}

// IsEmptyMarker treats absent, null and empty markers as "no more pages".
func IsEmptyMarker(marker json.RawMessage) bool {
	trimmed := bytes.TrimSpace(marker)
	switch string(trimmed) {
	case "", "null", `""`, "{}", "[]":
		return true
	}
	return false
}

// AccountTxEntry wraps a transaction together with its metadata.
type AccountTxEntry struct {
	Tx        Transaction     `json:"tx"`
	Meta      json.RawMessage `json:"meta"`
	Validated bool            `json:"validated"`
}

type Transaction struct {
	TransactionType string         `json:"TransactionType"`
	Account         string         `json:"Account"`
	Destination     string         `json:"Destination"`
	Amount          CurrencyAmount `json:"Amount"`
	Hash            string         `json:"hash"`
	LedgerIndex     int64          `json:"ledger_index"`
	Date            *int64         `json:"date"`
	Memos           []MemoWrapper  `json:"Memos"`
}

type MemoWrapper struct {
	Memo Memo `json:"Memo"`
}

type Memo struct {
	MemoData   string `json:"MemoData"`
	MemoType   string `json:"MemoType"`
	MemoFormat string `json:"MemoFormat"`
}

// CurrencyAmount holds either a native amount (a bare string of drops) or an
// issued-currency amount object. Anything else is kept only as Raw.
type CurrencyAmount struct {
	Drops  string
	Issued *IssuedAmount
	Raw    json.RawMessage
}

type IssuedAmount struct {
	Currency string
	Issuer   string
	Value    string
}

// IsStructured reports whether the amount is an issued-currency object.
func (a CurrencyAmount) IsStructured() bool {
	return a.Issued != nil
}

func (a *CurrencyAmount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*a = CurrencyAmount{Raw: append(json.RawMessage(nil), trimmed...)}
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &a.Drops)
	case '{':
		var wire struct {
			Currency string          `json:"currency"`
			Issuer   string          `json:"issuer"`
			Value    json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return err
		}
		a.Issued = &IssuedAmount{
			Currency: wire.Currency,
			Issuer:   wire.Issuer,
			Value:    scalarString(wire.Value),
		}
	}
	return nil
}

func (a CurrencyAmount) MarshalJSON() ([]byte, error) {
	switch {
	case a.Issued != nil:
		return json.Marshal(map[string]string{
			"currency": a.Issued.Currency,
			"issuer":   a.Issued.Issuer,
			"value":    a.Issued.Value,
		})
	case a.Drops != "":
		return json.Marshal(a.Drops)
	case len(a.Raw) > 0:
		return a.Raw, nil
	}
	return []byte("null"), nil
}

// scalarString reads a JSON string or number as text. The value of an issued
// amount is always a string on the wire, but numbers are tolerated.
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return ""
		}
		return text
	}
	return string(trimmed)
}
