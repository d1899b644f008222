package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW"
	testCurrency = "PFT"
)

func decodeTx(t *testing.T, raw string) Transaction {
	t.Helper()
	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(raw), &tx))
	return tx
}

func TestPaymentFilter_Match(t *testing.T) {
	filter := PaymentFilter{Currency: testCurrency, Issuer: testIssuer}

	tests := []struct {
		name string
		tx   string
		want bool
	}{
		{
			name: "tracked token payment",
			tx:   `{"TransactionType":"Payment","Amount":{"currency":"PFT","issuer":"rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW","value":"10"}}`,
			want: true,
		},
		{
			name: "other currency same issuer",
			tx:   `{"TransactionType":"Payment","Amount":{"currency":"USD","issuer":"rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW","value":"10"}}`,
		},
		{
			name: "same currency other issuer",
			tx:   `{"TransactionType":"Payment","Amount":{"currency":"PFT","issuer":"rOther","value":"10"}}`,
		},
		{
			name: "native amount",
			tx:   `{"TransactionType":"Payment","Amount":"1000000"}`,
		},
		{
			name: "trust set",
			tx:   `{"TransactionType":"TrustSet","Amount":{"currency":"PFT","issuer":"rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW","value":"10"}}`,
		},
		{
			name: "lowercase currency",
			tx:   `{"TransactionType":"Payment","Amount":{"currency":"pft","issuer":"rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW","value":"10"}}`,
		},
		{
			name: "missing amount",
			tx:   `{"TransactionType":"Payment"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter.Match(decodeTx(t, tt.tx)))
		})
	}
}

func TestCurrencyAmount_Unmarshal(t *testing.T) {
	tx := decodeTx(t, `{"Amount":{"currency":"PFT","issuer":"rX","value":12.5}}`)
	require.True(t, tx.Amount.IsStructured())
	assert.Equal(t, "12.5", tx.Amount.Issued.Value)

	tx = decodeTx(t, `{"Amount":"25000000"}`)
	assert.False(t, tx.Amount.IsStructured())
	assert.Equal(t, "25000000", tx.Amount.Drops)

	tx = decodeTx(t, `{"Amount":null}`)
	assert.False(t, tx.Amount.IsStructured())
}

func TestIsEmptyMarker(t *testing.T) {
	assert.True(t, IsEmptyMarker(nil))
	assert.True(t, IsEmptyMarker(json.RawMessage("null")))
	assert.True(t, IsEmptyMarker(json.RawMessage(`""`)))
	assert.False(t, IsEmptyMarker(json.RawMessage(`{"ledger":5,"seq":2}`)))
	assert.False(t, IsEmptyMarker(json.RawMessage(`"abc"`)))
}
