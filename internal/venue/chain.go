package venue

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dialer lazily opens a single shared RPC connection.
type Dialer struct {
	rpcURL    string
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewDialer returns a Dialer for rpcURL. Nothing is dialled until first use.
func NewDialer(rpcURL string) *Dialer {
	return &Dialer{rpcURL: rpcURL}
}

// Caller returns the shared client, dialling it on first call.
func (d *Dialer) Caller(ctx context.Context) (ContractCaller, error) {
	d.clientMux.Lock()
	defer d.clientMux.Unlock()

	if d.rpcURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if d.client != nil {
		return d.client, nil
	}

	client, err := ethclient.DialContext(ctx, d.rpcURL)
	if err != nil {
		return nil, err
	}
	d.client = client
	return client, nil
}

// Close releases the RPC connection if one was opened.
func (d *Dialer) Close() {
	d.clientMux.Lock()
	defer d.clientMux.Unlock()
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
}

// CallerSource yields a ContractCaller on demand.
type CallerSource interface {
	Caller(ctx context.Context) (ContractCaller, error)
}

// StaticCaller adapts a fixed ContractCaller into a CallerSource.
type StaticCaller struct {
	ContractCaller
}

// Caller returns the wrapped caller.
func (s StaticCaller) Caller(context.Context) (ContractCaller, error) {
	return s.ContractCaller, nil
}
