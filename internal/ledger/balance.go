// Package ledger reads on-chain token balances for the treasury.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// DefaultRPCURL is the default Solana RPC endpoint.
const DefaultRPCURL = solanarpc.MainNetBeta_RPC

// Client reads the treasury token account's balance over Solana RPC.
type Client struct {
	rpc          *solanarpc.Client
	tokenAccount solana.PublicKey
	log          *slog.Logger
}

// New creates a balance client for the given treasury token account.
func New(rpcURL, tokenAccount string, log *slog.Logger) (*Client, error) {
	if rpcURL == "" {
		rpcURL = DefaultRPCURL
	}
	if log == nil {
		log = slog.Default()
	}
	account, err := solana.PublicKeyFromBase58(tokenAccount)
	if err != nil {
		return nil, fmt.Errorf("invalid treasury token account: %w", err)
	}
	return &Client{
		rpc:          solanarpc.New(rpcURL),
		tokenAccount: account,
		log:          log,
	}, nil
}

// TreasuryBalanceBase fetches the treasury token account's balance in base
// units. An account that does not exist yet reads as zero.
func (c *Client) TreasuryBalanceBase(ctx context.Context) (uint64, error) {
	out, err := c.rpc.GetTokenAccountBalance(ctx, c.tokenAccount, solanarpc.CommitmentFinalized)
	if err != nil {
		if isAccountNotFound(err) {
			c.log.Debug("treasury token account not found, reading balance as zero", "account", c.tokenAccount)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch token balance: %w", err)
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}

	base, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", out.Value.Amount, err)
	}
	return base, nil
}

func isAccountNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "account not found") ||
		strings.Contains(msg, "invalid param: could not find")
}
