package rpcpool

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
)

type gasQuote struct {
	price     *big.Int
	fetchedAt time.Time
}

// gasFetchFunc retrieves a fee estimate from one endpoint URL.
type gasFetchFunc func(ctx context.Context, url string) (*big.Int, error)

// GasPrice returns a fee estimate, short-TTL cached so that a burst of
// callers inside the cache window shares a single network round trip.
// Callers get a copy; the cached value is never aliased out.
func (m *Manager) GasPrice(ctx context.Context) (*big.Int, error) {
	m.gasMu.Lock()
	defer m.gasMu.Unlock()

	if m.gasPrice.price != nil && m.now().Sub(m.gasPrice.fetchedAt) < m.gasTTL {
		return new(big.Int).Set(m.gasPrice.price), nil
	}

	var price *big.Int
	err := m.WithRetry(ctx, func(opCtx context.Context, ep entity.Endpoint) error {
		p, err := m.fetchGas(opCtx, ep.URL)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.gasPrice = gasQuote{price: price, fetchedAt: m.now()}
	return new(big.Int).Set(price), nil
}

func dialGasFetch(ctx context.Context, url string) (*big.Int, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.SuggestGasPrice(ctx)
}

func maskedLog(url string) string {
	return entity.MaskURL(url)
}
