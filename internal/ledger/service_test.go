package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blocchat/chainledger/internal/alert"
	"github.com/blocchat/chainledger/internal/chain"
	"github.com/blocchat/chainledger/internal/domain/model"
	"github.com/blocchat/chainledger/internal/retry"
	"github.com/blocchat/chainledger/internal/store"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockTxRepo implements store.TransactionRepository in memory.
type mockTxRepo struct {
	mu           sync.Mutex
	transactions map[string]*model.Transaction
	insertErr    error
	updateCalls  int
}

func newMockTxRepo() *mockTxRepo {
	return &mockTxRepo{transactions: make(map[string]*model.Transaction)}
}

func (m *mockTxRepo) Insert(_ context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, exists := m.transactions[t.TxHash]; exists {
		return store.ErrDuplicate
	}
	cp := *t
	m.transactions[t.TxHash] = &cp
	return nil
}

func (m *mockTxRepo) FindByHash(_ context.Context, txHash string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[txHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *mockTxRepo) ListByConversation(_ context.Context, conversationID string) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.transactions {
		if t.ConversationID == conversationID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTxRepo) ListPending(_ context.Context) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for _, t := range m.transactions {
		if t.Status == model.TxStatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockTxRepo) UpdateStatusIfPending(_ context.Context, txHash string, status model.TxStatus, blockNumber int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	t, ok := m.transactions[txHash]
	if !ok || t.Status != model.TxStatusPending {
		return false, nil
	}
	t.Status = status
	t.BlockNumber = &blockNumber
	return true, nil
}

func (m *mockTxRepo) status(txHash string) model.TxStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transactions[txHash].Status
}

// mockReader implements chain.Reader.
type mockReader struct {
	chainID  int64
	receipts map[string]*chain.Receipt
	err      error
}

func (m *mockReader) ChainID() int64 { return m.chainID }

func (m *mockReader) GetReceipt(_ context.Context, txHash string) (*chain.Receipt, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.receipts[txHash], nil
}

func (m *mockReader) GetBalance(_ context.Context, _, _ string) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (m *mockReader) BlockNumber(_ context.Context) (int64, error) { return 0, nil }

// mockAlerter implements alert.Alerter.
type mockAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (m *mockAlerter) Send(_ context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *mockAlerter) getAlerts() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]alert.Alert, len(m.alerts))
	copy(cp, m.alerts)
	return cp
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

const (
	testHash      = "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	testHashUpper = "0xABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"
	testFrom      = "0x1111111111111111111111111111111111111111"
	testTo        = "0x2222222222222222222222222222222222222222"
	testConvID    = "conv-1"
)

func validInput() RecordInput {
	return RecordInput{
		TxHash:         testHash,
		FromAddress:    testFrom,
		ToAddress:      testTo,
		Amount:         "1000000000000000000",
		ChainID:        8453,
		ConversationID: testConvID,
	}
}

func newTestService(repo *mockTxRepo, reader *mockReader, alerter alert.Alerter) *Service {
	registry := chain.NewRegistry(reader)
	return NewService(repo, registry, alerter, testLogger(), WithMaxRetries(0))
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

func TestRecord_Valid(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	tx, err := svc.Record(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, model.TxStatusPending, tx.Status)
	assert.Equal(t, testFrom, tx.FromAddress)
	assert.Equal(t, "1000000000000000000", tx.Amount)
	assert.Nil(t, tx.TokenAddress)
}

func TestRecord_NormalizesCase(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	in := validInput()
	in.TxHash = testHashUpper
	in.FromAddress = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	tx, err := svc.Record(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, testHash, tx.TxHash)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", tx.FromAddress)
}

func TestRecord_Duplicate(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Record(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestRecord_DuplicateDiffersOnlyInCase(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.TxHash = testHashUpper
	_, err = svc.Record(context.Background(), in)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestRecord_Invalid(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	cases := []struct {
		name   string
		mutate func(*RecordInput)
	}{
		{"short hash", func(in *RecordInput) { in.TxHash = "0x1234" }},
		{"missing 0x prefix", func(in *RecordInput) { in.TxHash = testHash[2:] + "ab" }},
		{"bad from address", func(in *RecordInput) { in.FromAddress = "0x123" }},
		{"bad to address", func(in *RecordInput) { in.ToAddress = "not-an-address" }},
		{"negative amount", func(in *RecordInput) { in.Amount = "-1" }},
		{"non-numeric amount", func(in *RecordInput) { in.Amount = "1.5e18" }},
		{"empty conversation", func(in *RecordInput) { in.ConversationID = "" }},
		{"unsupported chain", func(in *RecordInput) { in.ChainID = 999 }},
		{"bad token address", func(in *RecordInput) { addr := "0xzz"; in.TokenAddress = &addr }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Record(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidTransaction)
		})
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	_, err := svc.Get(context.Background(), testHash)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

// ---------------------------------------------------------------------------
// ReconcilePending
// ---------------------------------------------------------------------------

func TestReconcile_ConfirmsMinedTransaction(t *testing.T) {
	repo := newMockTxRepo()
	reader := &mockReader{
		chainID: 8453,
		receipts: map[string]*chain.Receipt{
			testHash: {TxHash: testHash, Status: chain.ReceiptStatusSuccess, BlockNumber: 100},
		},
	}
	alerter := &mockAlerter{}
	svc := newTestService(repo, reader, alerter)

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Checked)
	assert.Equal(t, int64(1), stats.Confirmed)
	assert.Equal(t, model.TxStatusConfirmed, repo.status(testHash))
	assert.Empty(t, alerter.getAlerts())
}

func TestReconcile_FailsRevertedTransaction(t *testing.T) {
	repo := newMockTxRepo()
	reader := &mockReader{
		chainID: 8453,
		receipts: map[string]*chain.Receipt{
			testHash: {TxHash: testHash, Status: chain.ReceiptStatusReverted, BlockNumber: 100},
		},
	}
	alerter := &mockAlerter{}
	svc := newTestService(repo, reader, alerter)

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, model.TxStatusFailed, repo.status(testHash))

	alerts := alerter.getAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.AlertTypeTxReverted, alerts[0].Type)
}

func TestReconcile_UnminedStaysPending(t *testing.T) {
	repo := newMockTxRepo()
	reader := &mockReader{chainID: 8453, receipts: map[string]*chain.Receipt{}}
	svc := newTestService(repo, reader, &mockAlerter{})

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.StillPending)
	assert.Equal(t, int64(0), stats.Errors)
	assert.Equal(t, model.TxStatusPending, repo.status(testHash))
}

func TestReconcile_TransientErrorLeavesPending(t *testing.T) {
	repo := newMockTxRepo()
	reader := &mockReader{chainID: 8453, err: retry.Transient(errors.New("connection reset"))}
	svc := newTestService(repo, reader, &mockAlerter{})

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, model.TxStatusPending, repo.status(testHash))
}

func TestReconcile_IdempotentAcrossSweeps(t *testing.T) {
	repo := newMockTxRepo()
	reader := &mockReader{
		chainID: 8453,
		receipts: map[string]*chain.Receipt{
			testHash: {TxHash: testHash, Status: chain.ReceiptStatusSuccess, BlockNumber: 100},
		},
	}
	svc := newTestService(repo, reader, &mockAlerter{})

	_, err := svc.Record(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.ReconcilePending(context.Background())
	require.NoError(t, err)

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Checked)
	assert.Equal(t, model.TxStatusConfirmed, repo.status(testHash))
}

func TestReconcile_EmptyQueue(t *testing.T) {
	repo := newMockTxRepo()
	svc := newTestService(repo, &mockReader{chainID: 8453}, &mockAlerter{})

	stats, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Checked)
}
