package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zk-escrow/api/client"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/types"
)

const usage = `escrowctl [flags] <command> [args]

commands:
  deposit <value>             move public tokens into a commitment
  transfer <account> <value>  send shielded tokens to an account
  withdraw <value>            move shielded tokens back to public tokens
  join                        merge the two largest commitments
  balance                     print the shielded balance
  commitments                 list the known commitments
  mint <value>                mint test tokens
  approve <value>             approve the shield to spend tokens

flags:
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("escrowctl", flag.ContinueOnError)
	host := fs.String("host", envOr("ESCROW_API", "http://localhost:3000"), "escrow daemon API address")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "request timeout")
	retries := fs.Int("retries", client.DefaultRetries, "connection attempts")
	recipientKey := fs.String("recipientPublicKey", "", "compressed public key owning the new commitment")
	logLevel := fs.String("logLevel", "error", "log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	log.Init(*logLevel, "stderr", nil)

	cmd := fs.Args()
	if len(cmd) == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}
	var pk *types.Field
	if *recipientKey != "" {
		f, err := types.ParseField(*recipientKey)
		if err != nil {
			return fmt.Errorf("invalid recipient public key: %w", err)
		}
		pk = &f
	}

	cli, err := client.New(ctx, *host)
	if err != nil {
		return err
	}
	cli.SetTimeout(*timeout)
	cli.SetRetries(*retries)

	var res any
	switch name, params := cmd[0], cmd[1:]; {
	case name == "deposit" && len(params) == 1:
		res, err = cli.Deposit(ctx, params[0], pk)
	case name == "transfer" && len(params) == 2:
		if !common.IsHexAddress(params[0]) {
			return fmt.Errorf("invalid account %q", params[0])
		}
		res, err = cli.Transfer(ctx, common.HexToAddress(params[0]), params[1], pk)
	case name == "withdraw" && len(params) == 1:
		res, err = cli.Withdraw(ctx, params[0])
	case name == "join" && len(params) == 0:
		res, err = cli.Join(ctx)
	case name == "balance" && len(params) == 0:
		res, err = cli.Balance(ctx)
	case name == "commitments" && len(params) == 0:
		res, err = cli.Commitments(ctx)
	case name == "mint" && len(params) == 1:
		res, err = cli.Mint(ctx, params[0])
	case name == "approve" && len(params) == 1:
		res, err = cli.Approve(ctx, params[0], nil)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command or wrong arguments: %v", cmd)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
