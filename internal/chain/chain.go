package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var ErrUnsupportedChain = errors.New("chain: unsupported chain id")

type ReceiptStatus string

const (
	ReceiptStatusSuccess  ReceiptStatus = "success"
	ReceiptStatusReverted ReceiptStatus = "reverted"
)

// Receipt is the settled outcome of a transaction on chain.
type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber int64
}

// Reader is the read-only view of a single chain. GetReceipt returns
// (nil, nil) while the transaction is not yet mined. GetBalance reads the
// native balance when tokenAddress is empty, otherwise the token balance,
// both in base units.
type Reader interface {
	ChainID() int64
	GetReceipt(ctx context.Context, txHash string) (*Receipt, error)
	GetBalance(ctx context.Context, wallet, tokenAddress string) (*big.Int, error)
	BlockNumber(ctx context.Context) (int64, error)
}

// Registry resolves Readers by chain id.
type Registry struct {
	readers map[int64]Reader
}

func NewRegistry(readers ...Reader) *Registry {
	m := make(map[int64]Reader, len(readers))
	for _, r := range readers {
		m[r.ChainID()] = r
	}
	return &Registry{readers: m}
}

func (r *Registry) Reader(chainID int64) (Reader, error) {
	reader, ok := r.readers[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return reader, nil
}

func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.readers))
	for id := range r.readers {
		ids = append(ids, id)
	}
	return ids
}
