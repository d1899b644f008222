package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"

	"paysync/internal/domain"
	"paysync/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccount  = "rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW"
	testIssuer   = "rnQUEEg8yyjrwk9FhyXpKavHyCRJM9BDMW"
	testCurrency = "PFT"
)

var testFilter = ledger.PaymentFilter{Currency: testCurrency, Issuer: testIssuer}

type fakeSource struct {
	pages    []ledger.AccountTxPage
	failAt   int
	failErr  error
	requests []ledger.AccountTxRequest
}

func (f *fakeSource) AccountTx(ctx context.Context, req ledger.AccountTxRequest) (ledger.AccountTxPage, error) {
	f.requests = append(f.requests, req)
	call := len(f.requests)
	if f.failErr != nil && call == f.failAt {
		return ledger.AccountTxPage{}, f.failErr
	}
	if call > len(f.pages) {
		return ledger.AccountTxPage{}, fmt.Errorf("unexpected call %d", call)
	}
	return f.pages[call-1], nil
}

type memStore struct {
	rows     map[string]domain.Payment
	batches  int
	storeErr error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.Payment)}
}

func (m *memStore) MaxLedgerIndex(ctx context.Context) (int64, bool, error) {
	if len(m.rows) == 0 {
		return 0, false, nil
	}
	var max int64
	for _, row := range m.rows {
		if row.LedgerIndex > max {
			max = row.LedgerIndex
		}
	}
	return max, true, nil
}

func (m *memStore) StorePayments(ctx context.Context, payments []domain.Payment) ([]domain.Payment, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	m.batches++
	var inserted []domain.Payment
	for _, p := range payments {
		if _, ok := m.rows[p.Hash]; ok {
			continue
		}
		m.rows[p.Hash] = p
		inserted = append(inserted, p)
	}
	return inserted, nil
}

func (m *memStore) sorted() []domain.Payment {
	out := make([]domain.Payment, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out
}

type recordingPublisher struct {
	published []domain.Payment
	err       error
}

func (p *recordingPublisher) PublishPayments(ctx context.Context, payments []domain.Payment) error {
	p.published = append(p.published, payments...)
	return p.err
}

type recordingObserver struct {
	resumes   []ResumePoint
	pages     []PageStats
	summaries []RunSummary
}

func (o *recordingObserver) OnResume(point ResumePoint)       { o.resumes = append(o.resumes, point) }
func (o *recordingObserver) OnPage(stats PageStats)           { o.pages = append(o.pages, stats) }
func (o *recordingObserver) OnRunComplete(summary RunSummary) { o.summaries = append(o.summaries, summary) }

func tokenPayment(hash string, ledgerIndex int64, value string) ledger.AccountTxEntry {
	date := int64(0)
	return ledger.AccountTxEntry{Tx: ledger.Transaction{
		TransactionType: ledger.TransactionTypePayment,
		Account:         "rSender",
		Destination:     "rReceiver",
		Hash:            hash,
		LedgerIndex:     ledgerIndex,
		Date:            &date,
		Amount: ledger.CurrencyAmount{Issued: &ledger.IssuedAmount{
			Currency: testCurrency,
			Issuer:   testIssuer,
			Value:    value,
		}},
	}}
}

func otherEntry(hash string, ledgerIndex int64, txType string) ledger.AccountTxEntry {
	return ledger.AccountTxEntry{Tx: ledger.Transaction{
		TransactionType: txType,
		Hash:            hash,
		LedgerIndex:     ledgerIndex,
		Amount:          ledger.CurrencyAmount{Drops: "1000"},
	}}
}

func marker(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"ledger":%d,"seq":0}`, n))
}

func newTestSyncer(t *testing.T, source LedgerSource, store PaymentStore, publisher PaymentPublisher, observer SyncObserver) *Syncer {
	t.Helper()
	syncer, err := NewSyncer(source, store, publisher, observer, SyncConfig{
		Account:  testAccount,
		Filter:   testFilter,
		PageSize: 2,
	})
	require.NoError(t, err)
	return syncer
}

func TestSyncer_PaginatesUntilMarkerAbsent(t *testing.T) {
	source := &fakeSource{pages: []ledger.AccountTxPage{
		{Transactions: []ledger.AccountTxEntry{tokenPayment("A", 1, "1")}, Marker: marker(1)},
		{Transactions: nil, Marker: marker(2)},
		{Transactions: []ledger.AccountTxEntry{tokenPayment("B", 3, "2")}},
	}}
	store := newMemStore()
	summary, err := newTestSyncer(t, source, store, nil, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, source.requests, 3)
	assert.Nil(t, source.requests[0].Marker)
	assert.JSONEq(t, string(marker(1)), string(source.requests[1].Marker))
	assert.JSONEq(t, string(marker(2)), string(source.requests[2].Marker))
	for _, req := range source.requests {
		assert.Equal(t, testAccount, req.Account)
		assert.Equal(t, int64(0), req.LedgerIndexMin)
		assert.Equal(t, 2, req.Limit)
	}
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 3, store.batches)
}

func TestSyncer_FiltersAndNormalizes(t *testing.T) {
	otherCurrency := tokenPayment("USD", 8, "5")
	otherCurrency.Tx.Amount.Issued.Currency = "USD"
	withMemo := tokenPayment("MEMO", 9, "123.99")
	withMemo.Tx.Memos = []ledger.MemoWrapper{
		{Memo: ledger.Memo{MemoData: "68656c6c6f"}},
		{Memo: ledger.Memo{MemoData: "d29ybGQ="}},
	}
	noDate := tokenPayment("NODATE", 10, "abc")
	noDate.Tx.Date = nil

	source := &fakeSource{pages: []ledger.AccountTxPage{{Transactions: []ledger.AccountTxEntry{
		otherEntry("XRP", 7, ledger.TransactionTypePayment),
		otherEntry("TRUST", 7, "TrustSet"),
		otherCurrency,
		withMemo,
		noDate,
	}}}}
	store := newMemStore()
	summary, err := newTestSyncer(t, source, store, nil, nil).Run(context.Background())
	require.NoError(t, err)

	rows := store.sorted()
	require.Len(t, rows, 2)

	memo := rows[0]
	assert.Equal(t, "MEMO", memo.Hash)
	assert.Equal(t, int64(123), memo.Amount)
	assert.Equal(t, "hello\nworld", memo.Memo)
	assert.Equal(t, "rSender", memo.From)
	assert.Equal(t, "rReceiver", memo.To)
	require.NotNil(t, memo.Timestamp)
	assert.Equal(t, "2000-01-01T00:00:00Z", memo.Timestamp.Format("2006-01-02T15:04:05Z07:00"))

	missing := rows[1]
	assert.Equal(t, "NODATE", missing.Hash)
	assert.Equal(t, int64(0), missing.Amount)
	assert.Nil(t, missing.Timestamp)

	assert.Equal(t, 5, summary.Entries)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.AmountsDefaulted)
	assert.Equal(t, 1, summary.TimestampsMissing)
	assert.Equal(t, int64(10), summary.HighestLedger)
}

func TestSyncer_ResumesAfterMaxStoredLedger(t *testing.T) {
	store := newMemStore()
	store.rows["OLD1"] = domain.Payment{Hash: "OLD1", LedgerIndex: 40}
	store.rows["OLD2"] = domain.Payment{Hash: "OLD2", LedgerIndex: 50}

	source := &fakeSource{pages: []ledger.AccountTxPage{{}}}
	observer := &recordingObserver{}
	summary, err := newTestSyncer(t, source, store, nil, observer).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, source.requests, 1)
	assert.Equal(t, int64(51), source.requests[0].LedgerIndexMin)
	assert.Equal(t, int64(50), summary.Resume.LastIndex)
	assert.Equal(t, int64(51), summary.HighestLedger)
	require.Len(t, observer.resumes, 1)
	assert.False(t, observer.resumes[0].Genesis())
	require.Len(t, observer.summaries, 1)
}

func TestSyncer_EmptyGenesisRunReportsLowerBound(t *testing.T) {
	source := &fakeSource{pages: []ledger.AccountTxPage{{}}}
	summary, err := newTestSyncer(t, source, newMemStore(), nil, nil).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Resume.Genesis())
	assert.Equal(t, int64(0), summary.HighestLedger)
	assert.Equal(t, 0, summary.Entries)
}

func TestSyncer_Idempotent(t *testing.T) {
	pages := []ledger.AccountTxPage{
		{Transactions: []ledger.AccountTxEntry{tokenPayment("A", 5, "1"), tokenPayment("B", 5, "2")}, Marker: marker(5)},
		{Transactions: []ledger.AccountTxEntry{tokenPayment("C", 6, "3")}},
	}
	store := newMemStore()

	first, err := newTestSyncer(t, &fakeSource{pages: pages}, store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	snapshot := store.sorted()

	second, err := newTestSyncer(t, &fakeSource{pages: pages}, store, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Matched)
	assert.Equal(t, snapshot, store.sorted())
}

func TestSyncer_AbortKeepsCommittedPages(t *testing.T) {
	fetchErr := errors.New("response has no result envelope")
	source := &fakeSource{
		pages: []ledger.AccountTxPage{
			{Transactions: []ledger.AccountTxEntry{tokenPayment("A", 5, "1")}, Marker: marker(5)},
		},
		failAt:  2,
		failErr: fetchErr,
	}
	store := newMemStore()
	observer := &recordingObserver{}
	summary, err := newTestSyncer(t, source, store, nil, observer).Run(context.Background())

	require.ErrorIs(t, err, fetchErr)
	assert.Equal(t, 1, summary.Pages)
	assert.Len(t, store.rows, 1)
	assert.Len(t, observer.pages, 1)
	assert.Empty(t, observer.summaries)
}

func TestSyncer_StoreFailureAborts(t *testing.T) {
	storeErr := errors.New("connection refused")
	source := &fakeSource{pages: []ledger.AccountTxPage{
		{Transactions: []ledger.AccountTxEntry{tokenPayment("A", 5, "1")}, Marker: marker(5)},
		{Transactions: []ledger.AccountTxEntry{tokenPayment("B", 6, "1")}},
	}}
	store := newMemStore()
	store.storeErr = storeErr

	_, err := newTestSyncer(t, source, store, nil, nil).Run(context.Background())
	require.ErrorIs(t, err, storeErr)
	assert.Len(t, source.requests, 1)
}

func TestSyncer_PublishesOnlyInserted(t *testing.T) {
	store := newMemStore()
	store.rows["A"] = domain.Payment{Hash: "A", LedgerIndex: 1}
	source := &fakeSource{pages: []ledger.AccountTxPage{
		{Transactions: []ledger.AccountTxEntry{tokenPayment("A", 1, "1"), tokenPayment("B", 2, "1")}},
	}}
	publisher := &recordingPublisher{err: errors.New("broker down")}

	summary, err := newTestSyncer(t, source, store, publisher, nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "B", publisher.published[0].Hash)
	assert.Equal(t, 1, summary.Inserted)
}

func TestSyncer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &fakeSource{pages: []ledger.AccountTxPage{{}}}

	_, err := newTestSyncer(t, source, newMemStore(), nil, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, source.requests)
}

func TestNewSyncer_Validation(t *testing.T) {
	_, err := NewSyncer(nil, newMemStore(), nil, nil, SyncConfig{Account: testAccount})
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewSyncer(&fakeSource{}, newMemStore(), nil, nil, SyncConfig{})
	assert.Error(t, err)

	syncer, err := NewSyncer(&fakeSource{}, newMemStore(), nil, nil, SyncConfig{Account: testAccount})
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, syncer.cfg.PageSize)
}

func TestResume(t *testing.T) {
	store := newMemStore()
	point, err := Resume(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, point.Genesis())
	assert.Equal(t, GenesisIndex, point.LastIndex)
	assert.Equal(t, int64(0), point.MinLedger())

	store.rows["X"] = domain.Payment{Hash: "X", LedgerIndex: 99}
	point, err = Resume(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, int64(100), point.MinLedger())
}
