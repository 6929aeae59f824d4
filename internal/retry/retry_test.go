package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blocchat/chainledger/internal/chain/evm/rpc"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Transient(errors.New("boom"))
	assert.True(t, Classify(transient).IsTransient())

	terminal := Terminal(errors.New("boom"))
	assert.False(t, Classify(terminal).IsTransient())

	// Markers survive wrapping.
	wrapped := fmt.Errorf("outer: %w", transient)
	assert.True(t, Classify(wrapped).IsTransient())
}

func TestClassify_NilMarkersAreNil(t *testing.T) {
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Terminal(nil))
}

func TestClassify_Context(t *testing.T) {
	assert.False(t, Classify(context.Canceled).IsTransient())
	assert.True(t, Classify(context.DeadlineExceeded).IsTransient())
}

func TestClassify_JSONRPCCodes(t *testing.T) {
	cases := []struct {
		code      int
		transient bool
	}{
		{-32603, true},  // internal error
		{-32005, true},  // limit exceeded
		{-32050, true},  // server error range
		{-32601, false}, // method not found
		{-32602, false}, // invalid params
		{3, false},      // execution error
	}
	for _, tc := range cases {
		err := fmt.Errorf("call failed: %w", &rpc.RPCError{Code: tc.code, Message: "rpc"})
		assert.Equal(t, tc.transient, Classify(err).IsTransient(), "code %d", tc.code)
	}
}

func TestClassify_MessageTokens(t *testing.T) {
	assert.True(t, Classify(errors.New("dial tcp: connection refused")).IsTransient())
	assert.True(t, Classify(errors.New("http status 429: too many requests")).IsTransient())
	assert.True(t, Classify(errors.New("circuit breaker is open")).IsTransient())
	assert.False(t, Classify(errors.New("execution reverted")).IsTransient())
	assert.False(t, Classify(errors.New("something entirely novel")).IsTransient())
}
