package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lightninglabs/subrelay"
	"github.com/lightninglabs/subrelay/eventlog"
	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightninglabs/subrelay/selector"
	"github.com/lightninglabs/subrelay/wallet"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/urfave/cli"
)

type rejectionView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type checkNodeView struct {
	Node       string          `json:"node"`
	Accepted   bool            `json:"accepted"`
	NavBalance int64           `json:"nav_balance_sat,omitempty"`
	Rejections []rejectionView `json:"rejections,omitempty"`
}

var checkNodeCommand = cli.Command{
	Name:      "checknode",
	Usage:     "run the handshake against a single outgoing server",
	ArgsUsage: "host[:port]",
	Description: "Performs the same checks relayd runs before choosing " +
		"a partner and reports whether the server would be accepted.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "secret",
			Usage: "secret embedded in the test payload",
		},
		cli.IntFlag{
			Name:  "ciphertextlen",
			Value: 344,
			Usage: "ciphertext length the server's key must produce",
		},
		cli.StringFlag{
			Name: "keydir",
			Usage: "directory of the relay's key pair, defaults to " +
				"<relaydir>/keys",
		},
		cli.StringFlag{
			Name:  "parent.host",
			Value: "localhost:44444",
			Usage: "parent wallet JSON-RPC address",
		},
		cli.StringFlag{
			Name:  "parent.user",
			Usage: "parent wallet RPC user",
		},
		cli.StringFlag{
			Name:  "parent.pass",
			Usage: "parent wallet RPC password",
		},
	},
	Action: checkNode,
}

func checkNode(ctx *cli.Context) error {
	if !ctx.Args().Present() {
		return cli.ShowCommandHelp(ctx, "checknode")
	}

	candidate, err := selector.ParseCandidate(ctx.Args().First())
	if err != nil {
		return err
	}

	keyDir := ctx.String("keydir")
	if keyDir == "" {
		keyDir = filepath.Join(ctx.GlobalString("relaydir"), "keys")
	}

	parentWallet, err := wallet.NewRPCClient(&wallet.RPCConfig{
		Host: ctx.String("parent.host"),
		User: ctx.String("parent.user"),
		Pass: ctx.String("parent.pass"),
	})
	if err != nil {
		return err
	}
	defer parentWallet.Stop()

	recorder := &eventlog.Recorder{}
	sel := selector.New(&selector.Config{
		Cluster:               []selector.Candidate{candidate},
		Secret:                ctx.String("secret"),
		ExpectedCiphertextLen: ctx.Int("ciphertextlen"),
		Wallet:                parentWallet,
		Keys: keys.NewFileCustodian(
			lncfg.CleanAndExpandPath(keyDir), false,
		),
		Transport: selector.NewHTTPTransport(
			selector.HTTPTransportConfig{
				UserAgent: subrelay.UserAgent("relaycli"),
			},
		),
		EventLog: recorder,
	})

	outcome, err := sel.Select(context.Background())
	if err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	view := &checkNodeView{
		Node:     candidate.String(),
		Accepted: outcome.Selected(),
	}
	if outcome.Selected() {
		view.NavBalance = int64(outcome.NavBalance)
	}

	for _, entry := range recorder.Entries() {
		view.Rejections = append(view.Rejections, rejectionView{
			Code:    string(entry.Code),
			Message: entry.Message,
		})
	}

	return printJSON(view)
}
