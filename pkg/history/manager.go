package history

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"relay-deposit/pkg/bridge"
	"relay-deposit/pkg/client"
)

// Manager provides high-level operations on the deposit history
type Manager struct {
	storage *Storage
	now     func() time.Time
}

// NewManager creates a new history manager
func NewManager(storagePath string) (*Manager, error) {
	storage, err := NewStorage(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	return &Manager{
		storage: storage,
		now:     time.Now,
	}, nil
}

// Record stores an executed deposit. It satisfies bridge.Recorder.
func (m *Manager) Record(outcome *bridge.Outcome, depositErr error) error {
	_, err := m.RecordDeposit(outcome, depositErr)
	return err
}

// RecordDeposit stores an executed deposit and returns the new record
func (m *Manager) RecordDeposit(outcome *bridge.Outcome, depositErr error) (*DepositRecord, error) {
	if outcome == nil || outcome.Request == nil {
		return nil, fmt.Errorf("deposit outcome is required")
	}

	now := m.now()
	req := outcome.Request
	record := &DepositRecord{
		ID:                 uuid.New().String(),
		Created:            now,
		LastUpdated:        now,
		Amount:             outcome.Amount,
		AmountBaseUnits:    req.Amount,
		OriginChainID:      req.OriginChainID,
		DestinationChainID: req.DestinationChainID,
		User:               req.User.Hex(),
		Status:             StatusPending,
	}
	if len(req.Txs) > 0 {
		record.Relayer = req.Txs[len(req.Txs)-1].To.Hex()
	}
	if outcome.Quote != nil {
		record.RequestID = outcome.Quote.RequestID()
	}

	if result := outcome.Result; result != nil {
		if result.RequestID != "" {
			record.RequestID = result.RequestID
		}
		for _, hash := range result.TxHashes {
			record.TxHashes = append(record.TxHashes, hash.Hex())
		}
		record.LastStatus = result.Status
	}

	switch {
	case depositErr == nil:
		record.Status = StatusCompleted
		record.CompletionTime = &now
	case len(record.TxHashes) > 0 && !errors.Is(depositErr, client.ErrExecutionFailed):
		// funds may still be in flight, the tracker settles it
		record.Status = StatusSubmitted
		record.Error = depositErr.Error()
	default:
		record.Status = StatusFailed
		record.Error = depositErr.Error()
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := m.storage.Create(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get retrieves a record by id or by a unique id prefix
func (m *Manager) Get(id string) (*DepositRecord, error) {
	record, err := m.storage.Get(id)
	if err == nil || !errors.Is(err, ErrNotFound) || len(id) < 4 {
		return record, err
	}

	var match *DepositRecord
	for _, r := range m.storage.List() {
		if strings.HasPrefix(r.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("deposit id prefix '%s' is ambiguous", id)
			}
			match = r
		}
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

// List returns all records, newest first
func (m *Manager) List() []*DepositRecord {
	return m.storage.List()
}

// Update saves a modified record
func (m *Manager) Update(record *DepositRecord) error {
	record.LastUpdated = m.now()
	return m.storage.Update(record)
}

// SetStatus changes the local status of a record
func (m *Manager) SetStatus(id string, status DepositStatus, errorMsg string) error {
	record, err := m.storage.Get(id)
	if err != nil {
		return err
	}

	record.Status = status
	if errorMsg != "" {
		record.Error = errorMsg
	}
	if status == StatusCompleted && record.CompletionTime == nil {
		now := m.now()
		record.CompletionTime = &now
	}
	return m.Update(record)
}

// ApplyRelayStatus merges a router status into a record
func (m *Manager) ApplyRelayStatus(id string, status *client.StatusResponse) (*DepositRecord, error) {
	record, err := m.storage.Get(id)
	if err != nil {
		return nil, err
	}

	record.LastStatus = status.Status
	for _, hash := range append(append([]string(nil), status.InTxHashes...), status.TxHashes...) {
		if !containsFold(record.TxHashes, hash) {
			record.TxHashes = append(record.TxHashes, hash)
		}
	}

	switch strings.ToLower(status.Status) {
	case client.StatusSuccess:
		record.Status = StatusCompleted
		record.Error = ""
		if record.CompletionTime == nil {
			now := m.now()
			record.CompletionTime = &now
		}
	case client.StatusFailure, client.StatusRefund:
		record.Status = StatusFailed
		if status.Details != "" {
			record.Error = status.Details
		} else {
			record.Error = "relay reported " + status.Status
		}
	case client.StatusWaiting, client.StatusPending:
		if record.Status == StatusPending {
			record.Status = StatusSubmitted
		}
	}

	if err := m.Update(record); err != nil {
		return nil, err
	}
	return record, nil
}

// GetStorage returns the storage instance
func (m *Manager) GetStorage() *Storage {
	return m.storage
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
