package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightninglabs/subrelay"
	"github.com/urfave/cli"
)

// defaultRelayDir is the default data directory of relayd.
var defaultRelayDir = btcutil.AppDataDir("relayd", false)

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("unable to encode response: %w", err)
	}

	fmt.Println(string(b))

	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[relaycli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = subrelay.Version()
	app.Name = "relaycli"
	app.Usage = "inspect and operate a relayd instance"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "relaydir",
			Value: defaultRelayDir,
			Usage: "relayd data directory",
		},
	}
	app.Commands = []cli.Command{
		listCyclesCommand, cycleInfoCommand, checkNodeCommand,
		genKeysCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}
