package history

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-deposit/pkg/bridge"
	"relay-deposit/pkg/client"
	"relay-deposit/pkg/contracts"
	"relay-deposit/pkg/types"
)

var testUser = common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	m, err := NewManager(path)
	require.NoError(t, err)
	return m, path
}

func testOutcome(result *client.ExecutionResult) *bridge.Outcome {
	return &bridge.Outcome{
		Amount: "10",
		Request: &types.DepositRequest{
			User:               testUser,
			OriginChainID:      80094,
			DestinationChainID: 1,
			Amount:             "10000000",
			Txs: []types.RawTx{
				{To: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Value: big.NewInt(0)},
				{To: contracts.DefaultRelayerAddress, Value: big.NewInt(0)},
			},
		},
		Quote:  &client.Quote{Steps: []client.Step{{RequestID: "0xquote"}}},
		Result: result,
	}
}

func TestRecordDepositStatuses(t *testing.T) {
	hash := common.HexToHash("0x01")

	tests := []struct {
		name   string
		result *client.ExecutionResult
		err    error
		want   DepositStatus
	}{
		{
			name:   "success",
			result: &client.ExecutionResult{RequestID: "0xreq", TxHashes: []common.Hash{hash}, Status: client.StatusSuccess},
			want:   StatusCompleted,
		},
		{
			name:   "sent but interrupted",
			result: &client.ExecutionResult{RequestID: "0xreq", TxHashes: []common.Hash{hash}, Status: client.StatusFailure},
			err:    context.DeadlineExceeded,
			want:   StatusSubmitted,
		},
		{
			name:   "router failure",
			result: &client.ExecutionResult{RequestID: "0xreq", TxHashes: []common.Hash{hash}, Status: client.StatusFailure},
			err:    client.ErrExecutionFailed,
			want:   StatusFailed,
		},
		{
			name:   "nothing sent",
			result: &client.ExecutionResult{Status: client.StatusFailure},
			err:    errors.New("user rejected"),
			want:   StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t)

			record, err := m.RecordDeposit(testOutcome(tt.result), tt.err)
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.Status)
			assert.Equal(t, "10", record.Amount)
			assert.Equal(t, "10000000", record.AmountBaseUnits)
			assert.Equal(t, testUser.Hex(), record.User)
			assert.Equal(t, contracts.DefaultRelayerAddress.Hex(), record.Relayer)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), record.Error)
			}
			if tt.result.RequestID == "" {
				assert.Equal(t, "0xquote", record.RequestID)
			}
		})
	}
}

func TestStoragePersists(t *testing.T) {
	m, path := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(&client.ExecutionResult{RequestID: "0xreq"}), nil)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := NewManager(path)
	require.NoError(t, err)

	got, err := reopened.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Len(t, reopened.List(), 1)
}

func TestGetByPrefix(t *testing.T) {
	m, _ := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(nil), nil)
	require.NoError(t, err)

	got, err := m.Get(record.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	_, err = m.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(nil), nil)
	require.NoError(t, err)

	got, err := m.Get(record.ID)
	require.NoError(t, err)
	got.Status = StatusFailed

	again, err := m.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestApplyRelayStatus(t *testing.T) {
	m, _ := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(&client.ExecutionResult{RequestID: "0xreq", TxHashes: []common.Hash{common.HexToHash("0x01")}}), context.Canceled)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, record.Status)

	updated, err := m.ApplyRelayStatus(record.ID, &client.StatusResponse{Status: client.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, updated.Status)
	assert.Equal(t, client.StatusPending, updated.LastStatus)

	updated, err = m.ApplyRelayStatus(record.ID, &client.StatusResponse{
		Status:   client.StatusSuccess,
		TxHashes: []string{"0xdest", common.HexToHash("0x01").Hex()},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)
	assert.Empty(t, updated.Error)
	assert.NotNil(t, updated.CompletionTime)
	assert.Len(t, updated.TxHashes, 2)

	failed, err := m.RecordDeposit(testOutcome(&client.ExecutionResult{RequestID: "0xother", TxHashes: []common.Hash{common.HexToHash("0x02")}}), context.Canceled)
	require.NoError(t, err)
	updated, err = m.ApplyRelayStatus(failed.ID, &client.StatusResponse{Status: client.StatusRefund})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)
	assert.Equal(t, "relay reported refund", updated.Error)
}

func TestSetStatus(t *testing.T) {
	m, _ := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(&client.ExecutionResult{TxHashes: []common.Hash{common.HexToHash("0x01")}}), context.Canceled)
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(record.ID, StatusCompleted, ""))
	got, err := m.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletionTime)

	assert.ErrorIs(t, m.SetStatus("missing", StatusFailed, "x"), ErrNotFound)
}

type fakeStatusSource struct {
	statuses map[string]string
	calls    []string
}

func (s *fakeStatusSource) GetStatus(ctx context.Context, requestID string) (*client.StatusResponse, error) {
	s.calls = append(s.calls, requestID)
	status, ok := s.statuses[requestID]
	if !ok {
		return nil, errors.New("unknown request")
	}
	return &client.StatusResponse{Status: status}, nil
}

func TestTrackerRefresh(t *testing.T) {
	m, _ := newTestManager(t)
	interrupted := func(requestID string) *bridge.Outcome {
		return testOutcome(&client.ExecutionResult{RequestID: requestID, TxHashes: []common.Hash{common.HexToHash("0x01")}})
	}

	recent, err := m.RecordDeposit(interrupted("0xrecent"), context.Canceled)
	require.NoError(t, err)
	_, err = m.RecordDeposit(testOutcome(&client.ExecutionResult{RequestID: "0xdone"}), nil)
	require.NoError(t, err)
	unknown, err := m.RecordDeposit(interrupted("0xunknown"), context.Canceled)
	require.NoError(t, err)

	// a record older than the refresh window
	m.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	_, err = m.RecordDeposit(interrupted("0xold"), context.Canceled)
	require.NoError(t, err)
	m.now = time.Now

	source := &fakeStatusSource{statuses: map[string]string{
		"0xrecent": client.StatusSuccess,
		"0xold":    client.StatusSuccess,
	}}
	tracker := NewTracker(m, source)

	updated, err := tracker.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.ElementsMatch(t, []string{"0xrecent", "0xunknown"}, source.calls)

	got, err := m.Get(recent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = m.Get(unknown.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, got.Status)
}

func TestTrackerWait(t *testing.T) {
	m, _ := newTestManager(t)

	record, err := m.RecordDeposit(testOutcome(&client.ExecutionResult{RequestID: "0xreq", TxHashes: []common.Hash{common.HexToHash("0x01")}}), context.Canceled)
	require.NoError(t, err)

	source := &fakeStatusSource{statuses: map[string]string{"0xreq": client.StatusFailure}}
	tracker := NewTracker(m, source)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := tracker.Wait(ctx, record.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
}
