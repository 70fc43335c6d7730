package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
)

// BlockSource delivers new chain heads
type BlockSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Watcher invalidates a cache on every new block
type Watcher struct {
	cache  *Cache
	source BlockSource

	// OnRefresh is called after the cache was invalidated for a new block
	OnRefresh func(ctx context.Context, head *types.Header)
}

// NewWatcher creates a watcher for cache driven by source
func NewWatcher(cache *Cache, source BlockSource) *Watcher {
	return &Watcher{cache: cache, source: source}
}

// Run invalidates every registered query once per new block until ctx is done
// or the subscription fails. Heads that do not advance the chain are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := w.source.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	var last *big.Int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case head := <-heads:
			if head == nil || head.Number == nil {
				continue
			}
			if last != nil && head.Number.Cmp(last) <= 0 {
				continue
			}
			last = new(big.Int).Set(head.Number)

			w.cache.InvalidateAll()
			logrus.WithField("block", head.Number).Debug("balances invalidated")

			if w.OnRefresh != nil {
				w.OnRefresh(ctx, head)
			}
		}
	}
}

// HeaderReader reads the latest header over plain RPC
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// PollingBlockSource turns an HTTP endpoint into a head subscription by polling
type PollingBlockSource struct {
	reader   HeaderReader
	interval time.Duration
}

// NewPollingBlockSource creates a block source polling reader every interval
func NewPollingBlockSource(reader HeaderReader, interval time.Duration) *PollingBlockSource {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollingBlockSource{reader: reader, interval: interval}
}

// SubscribeNewHead polls the latest header and sends it whenever the block number advances
func (p *PollingBlockSource) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last *big.Int
		for {
			head, err := p.reader.HeaderByNumber(ctx, nil)
			if err != nil {
				logrus.WithError(err).Debug("failed to poll latest header")
			} else if head.Number != nil && (last == nil || head.Number.Cmp(last) > 0) {
				last = new(big.Int).Set(head.Number)
				select {
				case ch <- head:
				case <-quit:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}), nil
}
