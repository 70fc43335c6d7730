package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"relay-deposit/pkg/amount"
	"relay-deposit/pkg/chain"
	"relay-deposit/pkg/wallet"
)

const (
	QueryNative = "native"
	QueryUSDC   = "usdc"
)

// FetchFunc reads the current value of a query
type FetchFunc func(ctx context.Context) (*big.Int, error)

// Query is a named balance read
type Query struct {
	Name     string
	Symbol   string
	Decimals int
	Fetch    FetchFunc
}

// Format renders a raw value of the query in display units
func (q Query) Format(value *big.Int) string {
	return fmt.Sprintf("%s %s", amount.FromBaseUnits(value, q.Decimals), q.Symbol)
}

// Cache holds the last fetched value of every registered query until it is invalidated.
// A fetch that overlaps an invalidation of its query is returned but not stored.
type Cache struct {
	mu      sync.RWMutex
	queries map[string]Query
	order   []string
	values  map[string]*big.Int
	gens    map[string]uint64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		queries: make(map[string]Query),
		values:  make(map[string]*big.Int),
		gens:    make(map[string]uint64),
	}
}

// NewAccountCache registers the native and USDC balance queries of account on c
func NewAccountCache(client wallet.EthClient, c chain.Chain, account common.Address) *Cache {
	cache := NewCache()
	cache.Register(Query{
		Name:     QueryNative,
		Symbol:   c.NativeSymbol,
		Decimals: c.NativeDecimals,
		Fetch: func(ctx context.Context) (*big.Int, error) {
			return wallet.NativeBalance(ctx, client, account)
		},
	})
	cache.Register(Query{
		Name:     QueryUSDC,
		Symbol:   "USDC",
		Decimals: chain.USDCDecimals,
		Fetch: func(ctx context.Context) (*big.Int, error) {
			return wallet.TokenBalance(ctx, client, c.USDC, account)
		},
	})
	return cache
}

// Register adds or replaces a query
func (c *Cache) Register(q Query) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.queries[q.Name]; !exists {
		c.order = append(c.order, q.Name)
	}
	c.queries[q.Name] = q
	c.invalidateLocked(q.Name)
}

// Names returns the registered query names in registration order
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// Query returns a registered query by name
func (c *Cache) Query(name string) (Query, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.queries[name]
	return q, ok
}

// Get returns the cached value of a query, fetching it if it is not cached
func (c *Cache) Get(ctx context.Context, name string) (*big.Int, error) {
	c.mu.RLock()
	q, ok := c.queries[name]
	value, cached := c.values[name]
	gen := c.gens[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown balance query: %s", name)
	}
	if cached {
		return new(big.Int).Set(value), nil
	}

	value, err := q.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s balance: %w", name, err)
	}

	c.mu.Lock()
	if c.gens[name] == gen {
		c.values[name] = value
	}
	c.mu.Unlock()

	return new(big.Int).Set(value), nil
}

// Invalidate drops the cached value of a query
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(name)
}

// InvalidateAll drops every cached value
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.queries {
		c.invalidateLocked(name)
	}
}

func (c *Cache) invalidateLocked(name string) {
	delete(c.values, name)
	c.gens[name]++
}

// Snapshot fetches every query concurrently and returns the values by name
func (c *Cache) Snapshot(ctx context.Context) (map[string]*big.Int, error) {
	names := c.Names()
	values := make([]*big.Int, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			v, err := c.Get(ctx, name)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]*big.Int, len(names))
	for i, name := range names {
		result[name] = values[i]
	}
	return result, nil
}
