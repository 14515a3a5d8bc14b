package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	// nativeTransferGas is the fixed gas cost of a plain value transfer.
	nativeTransferGas = 21000

	weiPerGwei = 1_000_000_000
)

// EthRPC is the subset of *ethclient.Client used by the Ethereum ledger.
type EthRPC interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Ethereum is a ledger client backed by an EVM JSON-RPC node. Amounts are
// expressed in gwei. Signing keys derived through DeriveWallet are held in
// process memory only and must be re-derived after a restart.
type Ethereum struct {
	rpc     EthRPC
	chainID *big.Int

	mu   sync.RWMutex
	keys map[string]*ecdsa.PrivateKey
}

// NewEthereum wraps an RPC client for the given chain.
func NewEthereum(client EthRPC, chainID int64) *Ethereum {
	return &Ethereum{
		rpc:     client,
		chainID: big.NewInt(chainID),
		keys:    make(map[string]*ecdsa.PrivateKey),
	}
}

func (e *Ethereum) DeriveWallet(_ context.Context, input DerivationInput) (string, error) {
	key, err := crypto.ToECDSA(input[:])
	if err != nil {
		return "", fmt.Errorf("%w: derive key: %v", ErrRejected, err)
	}
	address := crypto.PubkeyToAddress(key.PublicKey)

	e.mu.Lock()
	e.keys[strings.ToLower(address.Hex())] = key
	e.mu.Unlock()

	return address.Hex(), nil
}

func (e *Ethereum) Balance(ctx context.Context, address string) (int64, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("%w: invalid address %q", ErrRejected, address)
	}
	wei, err := e.rpc.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, classify("balance", err)
	}
	gwei := new(big.Int).Quo(wei, big.NewInt(weiPerGwei))
	if !gwei.IsInt64() {
		return 0, fmt.Errorf("%w: balance %s gwei overflows", ErrUnavailable, gwei)
	}
	return gwei.Int64(), nil
}

func (e *Ethereum) Broadcast(ctx context.Context, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("%w: invalid recipient %q", ErrRejected, to)
	}

	e.mu.RLock()
	key, ok := e.keys[strings.ToLower(strings.TrimSpace(from))]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, from)
	}

	fromAddr := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := e.rpc.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return "", classify("nonce", err)
	}
	gasPrice, err := e.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return "", classify("gas price", err)
	}

	toAddr := common.HexToAddress(to)
	value := new(big.Int).Mul(big.NewInt(amount), big.NewInt(weiPerGwei))
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    value,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), key)
	if err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrRejected, err)
	}
	if err := e.rpc.SendTransaction(ctx, signed); err != nil {
		return "", classify("send", err)
	}
	return signed.Hash().Hex(), nil
}

func (e *Ethereum) TxStatus(ctx context.Context, hash string) (TxStatus, error) {
	txHash := common.HexToHash(hash)

	receipt, err := e.rpc.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		// No receipt yet; the node may still hold it in the mempool.
		_, _, lookupErr := e.rpc.TransactionByHash(ctx, txHash)
		switch {
		case errors.Is(lookupErr, ethereum.NotFound):
			return TxStatus{}, ErrNotFound
		case lookupErr != nil:
			return TxStatus{}, classify("transaction", lookupErr)
		}
		return TxStatus{}, nil
	}
	if err != nil {
		return TxStatus{}, classify("receipt", err)
	}

	head, err := e.rpc.BlockNumber(ctx)
	if err != nil {
		return TxStatus{}, classify("block number", err)
	}

	confirmations := 0
	if receipt.BlockNumber != nil && head >= receipt.BlockNumber.Uint64() {
		confirmations = int(head - receipt.BlockNumber.Uint64() + 1)
	}
	return TxStatus{
		Observed:      true,
		Confirmations: confirmations,
		Reverted:      receipt.Status == types.ReceiptStatusFailed,
	}, nil
}

// classify maps node errors onto the ledger taxonomy. JSON-RPC error
// responses are treated as a refusal by the node; anything else, including
// transport failures and cancellation, is transient.
func classify(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %v", ErrRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
