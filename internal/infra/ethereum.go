package infra

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// NewEthClient dials the JSON-RPC node and checks it serves the expected chain.
func NewEthClient(ctx context.Context, url string, chainID int64) (*ethclient.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("ethereum rpc url is required")
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if got.Cmp(big.NewInt(chainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("ethereum rpc serves chain %s, expected %d", got, chainID)
	}
	return client, nil
}
