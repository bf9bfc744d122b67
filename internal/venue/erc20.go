package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

const erc20ABIJSON = `[{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// DecimalsReader reads ERC-20 decimals, caching results per token address.
type DecimalsReader struct {
	source CallerSource
	cache  *lru.Cache[common.Address, uint8]
}

// NewDecimalsReader constructs a reader holding up to size cached tokens.
func NewDecimalsReader(source CallerSource, size int) (*DecimalsReader, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[common.Address, uint8](size)
	if err != nil {
		return nil, err
	}
	return &DecimalsReader{source: source, cache: cache}, nil
}

// Decimals returns the token's on-chain decimals.
func (d *DecimalsReader) Decimals(ctx context.Context, address string) (uint8, error) {
	if !common.IsHexAddress(address) {
		return 0, fmt.Errorf("invalid token address %q", address)
	}
	token := common.HexToAddress(address)
	if v, ok := d.cache.Get(token); ok {
		return v, nil
	}

	caller, err := d.source.Caller(ctx)
	if err != nil {
		return 0, err
	}

	payload, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return 0, fmt.Errorf("call decimals on %s: %w", token.Hex(), err)
	}

	outputs, err := erc20ABI.Unpack("decimals", res)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	if len(outputs) != 1 {
		return 0, fmt.Errorf("unexpected decimals response")
	}
	value, ok := outputs[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("failed to decode decimals output")
	}

	d.cache.Add(token, value)
	return value, nil
}
