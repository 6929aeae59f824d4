package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// balanceOfSelector is the 4-byte selector of the ERC-20 balanceOf(address)
// function.
const balanceOfSelector = "0x70a08231"

func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}

	blockNumber, err := ParseHexInt64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return blockNumber, nil
}

func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*TransactionReceipt, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt(%s): %w", hash, err)
	}
	if string(result) == "null" {
		return nil, nil
	}

	var receipt TransactionReceipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal transaction receipt: %w", err)
	}

	return &receipt, nil
}

func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	result, err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance(%s): %w", address, err)
	}

	var hexBalance string
	if err := json.Unmarshal(result, &hexBalance); err != nil {
		return nil, fmt.Errorf("unmarshal balance: %w", err)
	}

	balance, err := ParseHexBig(hexBalance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return balance, nil
}

// GetTokenBalance reads an ERC-20 balance via eth_call against the token
// contract. The wallet address is left-padded to a 32-byte ABI word.
func (c *Client) GetTokenBalance(ctx context.Context, tokenAddress, wallet string) (*big.Int, error) {
	data := balanceOfSelector + padAddress(wallet)
	args := CallArgs{To: tokenAddress, Data: data}

	result, err := c.call(ctx, "eth_call", []interface{}{args, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_call balanceOf(%s, %s): %w", tokenAddress, wallet, err)
	}

	var hexBalance string
	if err := json.Unmarshal(result, &hexBalance); err != nil {
		return nil, fmt.Errorf("unmarshal token balance: %w", err)
	}

	balance, err := ParseHexBig(hexBalance)
	if err != nil {
		return nil, fmt.Errorf("parse token balance: %w", err)
	}
	return balance, nil
}

func padAddress(address string) string {
	raw := strings.TrimPrefix(strings.ToLower(address), "0x")
	return strings.Repeat("0", 64-len(raw)) + raw
}

func ParseHexInt64(value string) (int64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return int64(parsed), nil
}

func ParseHexBig(value string) (*big.Int, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return nil, fmt.Errorf("parse hex %q", value)
	}
	return parsed, nil
}
