package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"relay-deposit/pkg/wallet"
)

const (
	MainnetAPI = "https://api.relay.link"
	TestnetAPI = "https://api.testnets.relay.link"

	DefaultPollingInterval = time.Second
	DefaultMaxPolls        = 300
	DefaultHTTPTimeout     = 30 * time.Second
)

var (
	// ErrEmptyQuote is returned when a quote carries no steps
	ErrEmptyQuote = errors.New("quote has no steps")

	// ErrUnsupportedStep is returned for step kinds the wallet cannot perform
	ErrUnsupportedStep = errors.New("unsupported quote step")

	// ErrExecutionFailed is returned when the router reports a failed or refunded request
	ErrExecutionFailed = errors.New("relay execution failed")

	// ErrPollTimeout is returned when a step check never reaches a final status
	ErrPollTimeout = errors.New("timed out waiting for relay confirmation")
)

// APIError is a non-2xx response from the Relay API
type APIError struct {
	StatusCode int
	Message    string
	ErrorCode  string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Config configures a RelayClient
type Config struct {
	BaseURL         string
	PollingInterval time.Duration
	MaxPolls        int
	HTTPClient      *http.Client
}

// RelayClient talks to the Relay routing API
type RelayClient struct {
	baseURL         string
	httpClient      *http.Client
	pollingInterval time.Duration
	maxPolls        int
}

// NewRelayClient creates a new Relay API client
func NewRelayClient(cfg Config) *RelayClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = MainnetAPI
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	pollingInterval := cfg.PollingInterval
	if pollingInterval <= 0 {
		pollingInterval = DefaultPollingInterval
	}

	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	return &RelayClient{
		baseURL:         baseURL,
		httpClient:      httpClient,
		pollingInterval: pollingInterval,
		maxPolls:        maxPolls,
	}
}

// GetQuote requests an executable quote
func (c *RelayClient) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var quote Quote
	if err := c.doJSON(ctx, http.MethodPost, "/quote", req, &quote); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	if len(quote.Steps) == 0 {
		return nil, ErrEmptyQuote
	}

	return &quote, nil
}

// GetStatus returns the execution status of a request
func (c *RelayClient) GetStatus(ctx context.Context, requestID string) (*StatusResponse, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request id is required")
	}

	var status StatusResponse
	path := "/intents/status/v2?requestId=" + url.QueryEscape(requestID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	return &status, nil
}

// GetChains returns the chains supported by the router
func (c *RelayClient) GetChains(ctx context.Context) ([]ChainInfo, error) {
	var resp chainsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/chains", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get chains: %w", err)
	}
	return resp.Chains, nil
}

// Progress is reported while a quote executes
type Progress struct {
	Step      *Step
	StepIndex int
	StepCount int
	Item      *StepItem
	TxHash    common.Hash
	Status    string
}

// ProgressFunc receives execution progress updates
type ProgressFunc func(Progress)

// ExecutionResult summarises an executed quote
type ExecutionResult struct {
	RequestID string
	TxHashes  []common.Hash
	Status    string
}

// Execute performs the quote steps through the wallet, waiting for every
// transaction to be mined and confirmed by the router before moving on.
// The result is returned even on error so callers can record what was sent.
func (c *RelayClient) Execute(ctx context.Context, quote *Quote, w wallet.Wallet, onProgress ProgressFunc) (*ExecutionResult, error) {
	result := &ExecutionResult{Status: StatusPending}
	if quote == nil || len(quote.Steps) == 0 {
		return result, ErrEmptyQuote
	}
	result.RequestID = quote.RequestID()

	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	for i := range quote.Steps {
		step := &quote.Steps[i]

		if step.Kind != StepKindTransaction {
			if stepComplete(step) {
				continue
			}
			result.Status = StatusFailure
			return result, fmt.Errorf("%w: %s step %q", ErrUnsupportedStep, step.Kind, step.ID)
		}

		for j := range step.Items {
			item := &step.Items[j]
			if item.Status == ItemStatusComplete {
				continue
			}

			hash, err := c.executeItem(ctx, w, step, item, func(hash common.Hash, status string) {
				report(Progress{Step: step, StepIndex: i, StepCount: len(quote.Steps), Item: item, TxHash: hash, Status: status})
			})
			if hash != (common.Hash{}) {
				result.TxHashes = append(result.TxHashes, hash)
			}
			if err != nil {
				result.Status = StatusFailure
				return result, err
			}

			item.Status = ItemStatusComplete
		}
	}

	result.Status = StatusSuccess
	return result, nil
}

func (c *RelayClient) executeItem(ctx context.Context, w wallet.Wallet, step *Step, item *StepItem, report func(common.Hash, string)) (common.Hash, error) {
	txData, err := item.TxData()
	if err != nil {
		return common.Hash{}, fmt.Errorf("step %q: %w", step.ID, err)
	}

	callData, err := txData.CallData()
	if err != nil {
		return common.Hash{}, fmt.Errorf("step %q: invalid call data: %w", step.ID, err)
	}

	if txData.ChainID != 0 {
		current, err := w.ChainID(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		if current != txData.ChainID {
			if err := w.SwitchChain(ctx, txData.ChainID); err != nil {
				return common.Hash{}, err
			}
		}
	}

	report(common.Hash{}, ItemStatusIncomplete)

	hash, err := w.SendTransaction(ctx, wallet.TxRequest{
		ChainID:              txData.ChainID,
		To:                   common.HexToAddress(txData.To),
		Value:                txData.Value.Int,
		Data:                 callData,
		Gas:                  txData.Gas.Uint64(),
		MaxFeePerGas:         txData.MaxFeePerGas.Int,
		MaxPriorityFeePerGas: txData.MaxPriorityFeePerGas.Int,
	})
	if err != nil {
		return common.Hash{}, err
	}

	logrus.WithFields(logrus.Fields{
		"step":     step.ID,
		"chain_id": txData.ChainID,
		"hash":     hash.Hex(),
	}).Info("submitted step transaction")
	report(hash, StatusPending)

	if _, err := w.WaitForReceipt(ctx, hash); err != nil {
		return hash, err
	}

	if item.Check != nil && item.Check.Endpoint != "" {
		if err := c.waitForCheck(ctx, item.Check); err != nil {
			return hash, err
		}
	}

	report(hash, StatusSuccess)
	return hash, nil
}

// waitForCheck polls a step check endpoint until it reports a final status
func (c *RelayClient) waitForCheck(ctx context.Context, check *Check) error {
	method := strings.ToUpper(check.Method)
	if method == "" {
		method = http.MethodGet
	}

	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.maxPolls; attempt++ {
		var status StatusResponse
		err := c.doJSON(ctx, method, check.Endpoint, nil, &status)
		if err != nil {
			// transient API errors are retried until the poll budget runs out
			logrus.WithError(err).WithField("endpoint", check.Endpoint).Debug("status check failed")
		} else {
			switch strings.ToLower(status.Status) {
			case StatusSuccess:
				return nil
			case StatusFailure, StatusRefund:
				return fmt.Errorf("%w: %s %s", ErrExecutionFailed, status.Status, status.Details)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return ErrPollTimeout
}

func stepComplete(step *Step) bool {
	for _, item := range step.Items {
		if item.Status != ItemStatusComplete {
			return false
		}
	}
	return true
}

func (c *RelayClient) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *RelayClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func parseAPIError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var errorResp struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Message != "" {
		apiErr.Message = errorResp.Message
		apiErr.ErrorCode = errorResp.ErrorCode
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
