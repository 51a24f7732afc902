package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lightninglabs/subrelay/relaydb"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/urfave/cli"
)

type outPointView struct {
	OutPoint string `json:"outpoint"`
	Amount   int64  `json:"amount_sat"`
}

type forwardView struct {
	outPointView

	SubAddress  string `json:"sub_address"`
	ForwardTxID string `json:"forward_txid"`
}

type cycleView struct {
	ID             string         `json:"id"`
	Time           string         `json:"time"`
	Outcome        string         `json:"outcome"`
	Partner        string         `json:"partner,omitempty"`
	PartnerBalance int64          `json:"partner_balance_sat,omitempty"`
	Forwarded      []forwardView  `json:"forwarded"`
	Returned       []outPointView `json:"returned"`
	Error          string         `json:"error,omitempty"`
}

func newOutPointView(o relaydb.OutPoint) outPointView {
	return outPointView{
		OutPoint: fmt.Sprintf("%v:%d", o.TxID, o.Vout),
		Amount:   int64(o.Amount),
	}
}

func newCycleView(c *relaydb.Cycle) *cycleView {
	view := &cycleView{
		ID:             c.ID.String(),
		Time:           c.Time.Format(time.RFC3339),
		Outcome:        c.Outcome.String(),
		Partner:        c.Partner,
		PartnerBalance: int64(c.PartnerBalance),
		Forwarded:      make([]forwardView, 0, len(c.Forwarded)),
		Returned:       make([]outPointView, 0, len(c.Returned)),
		Error:          c.Error,
	}

	for _, f := range c.Forwarded {
		view.Forwarded = append(view.Forwarded, forwardView{
			outPointView: newOutPointView(f.OutPoint),
			SubAddress:   f.SubAddress,
			ForwardTxID:  f.ForwardTxID,
		})
	}

	for _, o := range c.Returned {
		view.Returned = append(view.Returned, newOutPointView(o))
	}

	return view
}

// openStore opens the cycle database of the relay directory. It fails if a
// running relayd holds the database.
func openStore(ctx *cli.Context) (*relaydb.BoltStore, error) {
	dir := lncfg.CleanAndExpandPath(ctx.GlobalString("relaydir"))

	return relaydb.NewBoltStore(dir)
}

var listCyclesCommand = cli.Command{
	Name:  "listcycles",
	Usage: "list the recorded relay cycles",
	Description: "Prints every cycle stored in the relay database, " +
		"oldest first. relayd must not be running.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name: "outcome",
			Usage: "only list cycles with this outcome " +
				"(Processed, Idle, ReturnAll, Failed)",
		},
		cli.UintFlag{
			Name:  "last",
			Usage: "only list the last n cycles",
		},
	},
	Action: listCycles,
}

func listCycles(ctx *cli.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cycles, err := store.FetchCycles(context.Background())
	if err != nil {
		return err
	}

	views := make([]*cycleView, 0, len(cycles))
	for _, c := range cycles {
		outcome := ctx.String("outcome")
		if outcome != "" && c.Outcome.String() != outcome {
			continue
		}

		views = append(views, newCycleView(c))
	}

	last := int(ctx.Uint("last"))
	if last > 0 && len(views) > last {
		views = views[len(views)-last:]
	}

	return printJSON(views)
}

var cycleInfoCommand = cli.Command{
	Name:      "cycleinfo",
	Usage:     "show a single relay cycle",
	ArgsUsage: "id",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "id",
			Usage: "the ID of the cycle",
		},
	},
	Action: cycleInfo,
}

func cycleInfo(ctx *cli.Context) error {
	args := ctx.Args()

	var idStr string
	switch {
	case ctx.IsSet("id"):
		idStr = ctx.String("id")

	case args.Present():
		idStr = args.First()

	default:
		return cli.ShowCommandHelp(ctx, "cycleinfo")
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid cycle id: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cycle, err := store.FetchCycle(context.Background(), id)
	if errors.Is(err, relaydb.ErrCycleNotFound) {
		return fmt.Errorf("no cycle %v in %v", id,
			ctx.GlobalString("relaydir"))
	}
	if err != nil {
		return err
	}

	return printJSON(newCycleView(cycle))
}
