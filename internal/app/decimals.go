package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"spreadwatch/internal/venue"
)

// ErrDecimalsMismatch is returned when a configured token precision differs
// from the chain.
var ErrDecimalsMismatch = errors.New("configured decimals differ from on-chain value")

// CheckDecimals compares configured ERC-20 decimals with the chain for every
// instrument whose tokens have EVM addresses.
func (a *App) CheckDecimals(ctx context.Context, out io.Writer) error {
	if a.Config.Ethereum.RPCURL == "" {
		return errors.New("ethereum.rpc_url not configured")
	}

	dialer := venue.NewDialer(a.Config.Ethereum.RPCURL)
	defer dialer.Close()
	return a.checkDecimals(ctx, dialer, out)
}

func (a *App) checkDecimals(ctx context.Context, source venue.CallerSource, out io.Writer) error {
	reader, err := venue.NewDecimalsReader(source, 0)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Instrument\tToken\tAddress\tConfigured\tOn-chain\tStatus")

	mismatched := false
	for _, inst := range a.Config.Instruments {
		for _, tok := range []venue.Token{pairOf(inst).Base, pairOf(inst).Quote} {
			if !common.IsHexAddress(tok.Address) {
				continue
			}
			status := "ok"
			onchain := "-"
			got, err := reader.Decimals(ctx, tok.Address)
			switch {
			case err != nil:
				status = "error: " + err.Error()
				a.Logger.Warn().Err(err).Str("instrument", inst.Name).Str("token", tok.Symbol).Msg("decimals lookup failed")
			case int32(got) != tok.Decimals:
				status = "MISMATCH"
				onchain = fmt.Sprint(got)
				mismatched = true
			default:
				onchain = fmt.Sprint(got)
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n", inst.Name, tok.Symbol, tok.Address, tok.Decimals, onchain, status)
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	if mismatched {
		return ErrDecimalsMismatch
	}
	return nil
}
