package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

var routerABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		panic("failed to parse router ABI: " + err.Error())
	}
	routerABI = parsed
}

// RouterOptions parameterise the on-chain router quoter.
type RouterOptions struct {
	Router string
	// Via lists intermediate hop token addresses.
	Via     []string
	Timeout time.Duration
}

// RouterQuoter prices swaps through a Uniswap-V2-style router's getAmountsOut.
type RouterQuoter struct {
	opts   RouterOptions
	source CallerSource
	logger zerolog.Logger
}

// NewRouterQuoter builds a router quoter over a caller source.
func NewRouterQuoter(opts RouterOptions, source CallerSource, logger zerolog.Logger) *RouterQuoter {
	return &RouterQuoter{opts: opts, source: source, logger: logger.With().Str("component", "router_quoter").Logger()}
}

// Quote returns the router's output for amountIn atoms along in → via... → out.
func (r *RouterQuoter) Quote(ctx context.Context, in, out Token, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if r.opts.Router == "" {
		return decimal.Decimal{}, errors.New("router address not configured")
	}
	if !common.IsHexAddress(in.Address) || !common.IsHexAddress(out.Address) {
		return decimal.Decimal{}, fmt.Errorf("router: invalid token address %q or %q", in.Address, out.Address)
	}

	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	caller, err := r.source.Caller(ctx)
	if err != nil {
		return decimal.Decimal{}, fetchErr("router: %v", err)
	}

	path := make([]common.Address, 0, len(r.opts.Via)+2)
	path = append(path, common.HexToAddress(in.Address))
	for _, hop := range r.opts.Via {
		path = append(path, common.HexToAddress(hop))
	}
	path = append(path, common.HexToAddress(out.Address))

	payload, err := routerABI.Pack("getAmountsOut", amountIn.BigInt(), path)
	if err != nil {
		return decimal.Decimal{}, err
	}

	router := common.HexToAddress(r.opts.Router)
	res, err := caller.CallContract(ctx, ethereum.CallMsg{To: &router, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, fetchErr("router: %v", err)
	}

	outputs, err := routerABI.Unpack("getAmountsOut", res)
	if err != nil {
		return decimal.Decimal{}, malformedErr("router: unpack: %v", err)
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, malformedErr("router: unexpected getAmountsOut response")
	}

	amounts, ok := outputs[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return decimal.Decimal{}, malformedErr("router: amounts length mismatch")
	}

	return decimal.NewFromBigInt(amounts[len(amounts)-1], 0), nil
}

var _ Quoter = (*RouterQuoter)(nil)
