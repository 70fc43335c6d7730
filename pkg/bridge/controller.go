package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"relay-deposit/pkg/amount"
	"relay-deposit/pkg/chain"
	"relay-deposit/pkg/client"
	"relay-deposit/pkg/contracts"
	"relay-deposit/pkg/types"
	"relay-deposit/pkg/wallet"
)

// ProgressGettingQuote is the progress text shown while the quote is requested
const ProgressGettingQuote = "Getting quote for deposit"

var (
	// ErrDepositInProgress is returned when a deposit is started while another one runs
	ErrDepositInProgress = errors.New("a deposit is already in progress")

	// ErrZeroAmount is returned for deposits of nothing
	ErrZeroAmount = errors.New("amount must be greater than 0")
)

// QuoteService is the routing service the controller asks for and executes quotes
type QuoteService interface {
	GetQuote(ctx context.Context, req client.QuoteRequest) (*client.Quote, error)
	Execute(ctx context.Context, quote *client.Quote, w wallet.Wallet, onProgress client.ProgressFunc) (*client.ExecutionResult, error)
}

// Recorder stores the outcome of executed deposits
type Recorder interface {
	Record(outcome *Outcome, depositErr error) error
}

// Config fixes the route and relayer a controller deposits through
type Config struct {
	Origin      chain.Chain
	Destination chain.Chain
	Relayer     common.Address
}

// Outcome is what a deposit action produced
type Outcome struct {
	Amount  string // as entered
	Request *types.DepositRequest
	Quote   *client.Quote
	Result  *client.ExecutionResult
}

// Controller runs the deposit action: network check, call-data, quote, execution
type Controller struct {
	cfg    Config
	wallet wallet.Wallet
	quotes QuoteService

	mu           sync.RWMutex
	progress     func(string)
	stepProgress client.ProgressFunc
	recorder     Recorder

	running atomic.Bool
	state   atomic.Int32
}

// NewController creates a controller. w may be nil when no wallet is connected.
func NewController(cfg Config, w wallet.Wallet, quotes QuoteService) *Controller {
	if cfg.Relayer == (common.Address{}) {
		cfg.Relayer = contracts.DefaultRelayerAddress
	}
	return &Controller{
		cfg:    cfg,
		wallet: w,
		quotes: quotes,
	}
}

// OnProgress sets the callback receiving progress text
func (c *Controller) OnProgress(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = fn
}

// OnStepProgress sets the callback receiving quote execution progress
func (c *Controller) OnStepProgress(fn client.ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepProgress = fn
}

// SetRecorder sets where executed deposits are recorded
func (c *Controller) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = r
}

// State returns the current state of the deposit action
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Config returns the controller route
func (c *Controller) Config() Config {
	return c.cfg
}

// Deposit bridges amount USDC from the origin chain and deposits it into the relayer.
// Without a connected wallet it logs and returns nil, nil without touching the network.
func (c *Controller) Deposit(ctx context.Context, amountStr string) (*Outcome, error) {
	return c.run(ctx, amountStr, true)
}

// Preview runs the deposit action up to and including the quote, without executing it
func (c *Controller) Preview(ctx context.Context, amountStr string) (*Outcome, error) {
	return c.run(ctx, amountStr, false)
}

func (c *Controller) run(ctx context.Context, amountStr string, execute bool) (*Outcome, error) {
	if c.wallet == nil || c.wallet.Address() == (common.Address{}) {
		logrus.Warn("Missing wallet")
		return nil, nil
	}

	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrDepositInProgress
	}
	defer func() {
		c.state.Store(int32(StateIdle))
		c.running.Store(false)
	}()

	user := c.wallet.Address()
	log := logrus.WithFields(logrus.Fields{
		"user":   user.Hex(),
		"amount": amountStr,
		"origin": c.cfg.Origin.ID,
		"dest":   c.cfg.Destination.ID,
	})

	req, err := c.BuildDepositRequest(user, amountStr)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{Amount: amountStr, Request: req}

	// make sure the wallet is on the origin chain
	activeChain, err := c.wallet.ChainID(ctx)
	if err != nil {
		return outcome, err
	}
	if activeChain != c.cfg.Origin.ID {
		c.state.Store(int32(StateSwitchingNetwork))
		log.WithField("from_chain", activeChain).Debug("switching wallet to origin chain")
		if err := c.wallet.SwitchChain(ctx, c.cfg.Origin.ID); err != nil {
			return outcome, err
		}
	}

	c.state.Store(int32(StateQuoting))
	c.reportProgress(ProgressGettingQuote)
	log.Debug("requesting quote")

	quote, err := c.quotes.GetQuote(ctx, QuoteRequestFor(req))
	if err != nil {
		return outcome, err
	}
	outcome.Quote = quote

	if !execute {
		return outcome, nil
	}

	c.state.Store(int32(StateExecuting))
	log.WithField("request_id", quote.RequestID()).Info("executing deposit quote")

	c.mu.RLock()
	stepProgress := c.stepProgress
	c.mu.RUnlock()

	result, err := c.quotes.Execute(ctx, quote, c.wallet, stepProgress)
	outcome.Result = result
	c.record(outcome, err)
	if err != nil {
		return outcome, err
	}

	log.WithField("request_id", result.RequestID).Info("deposit completed")
	return outcome, nil
}

// BuildDepositRequest converts the entered amount and prepares the two
// destination transactions: a USDC transfer to the relayer and the relayer
// deposit call crediting user.
func (c *Controller) BuildDepositRequest(user common.Address, amountStr string) (*types.DepositRequest, error) {
	value, err := amount.ToBaseUnits(amountStr, chain.USDCDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	if value.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	transferData, err := contracts.PackTransfer(c.cfg.Relayer, value)
	if err != nil {
		return nil, err
	}

	depositData, err := contracts.PackHandleRelayLinkMessage(c.cfg.Destination.USDC, value, user, c.cfg.Origin.ID, user)
	if err != nil {
		return nil, err
	}

	return &types.DepositRequest{
		User:               user,
		OriginChainID:      c.cfg.Origin.ID,
		DestinationChainID: c.cfg.Destination.ID,
		OriginAsset:        c.cfg.Origin.USDC,
		DestinationAsset:   c.cfg.Destination.USDC,
		Amount:             value.String(),
		Txs: []types.RawTx{
			{To: c.cfg.Destination.USDC, Value: big.NewInt(0), Data: transferData},
			{To: c.cfg.Relayer, Value: big.NewInt(0), Data: depositData},
		},
	}, nil
}

// QuoteRequestFor turns a deposit request into an EXACT_OUTPUT quote request
func QuoteRequestFor(req *types.DepositRequest) client.QuoteRequest {
	txs := make([]client.QuoteTx, 0, len(req.Txs))
	for _, tx := range req.Txs {
		value := "0"
		if tx.Value != nil {
			value = tx.Value.String()
		}
		txs = append(txs, client.QuoteTx{
			To:    tx.To.Hex(),
			Value: value,
			Data:  hexutil.Encode(tx.Data),
		})
	}

	return client.QuoteRequest{
		User:                req.User.Hex(),
		Recipient:           req.User.Hex(),
		OriginChainID:       req.OriginChainID,
		DestinationChainID:  req.DestinationChainID,
		OriginCurrency:      req.OriginAsset.Hex(),
		DestinationCurrency: req.DestinationAsset.Hex(),
		Amount:              req.Amount,
		TradeType:           client.TradeTypeExactOutput,
		Txs:                 txs,
	}
}

func (c *Controller) reportProgress(msg string) {
	c.mu.RLock()
	fn := c.progress
	c.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (c *Controller) record(outcome *Outcome, depositErr error) {
	c.mu.RLock()
	recorder := c.recorder
	c.mu.RUnlock()
	if recorder == nil {
		return
	}

	if err := recorder.Record(outcome, depositErr); err != nil {
		logrus.WithError(err).Warn("failed to record deposit")
	}
}
