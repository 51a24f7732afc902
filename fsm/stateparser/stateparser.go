package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lightninglabs/subrelay/fsm"
	"github.com/lightninglabs/subrelay/processor"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	out := flag.String("out", "", "outfile")
	stateMachine := flag.String("fsm", "", "the state machine to parse")
	flag.Parse()

	if filepath.Ext(*out) != ".md" {
		return errors.New("wrong argument: out must be a .md file")
	}

	fp, err := filepath.Abs(*out)
	if err != nil {
		return err
	}

	switch *stateMachine {
	case "tx":
		return writeMermaidFile(fp, processor.GetStates())

	default:
		fmt.Println("Missing or wrong argument: fsm must be one of:")
		fmt.Println("\ttx")
	}

	return nil
}

func writeMermaidFile(filename string, states fsm.States) error {
	return os.WriteFile(filename, []byte(fsm.MermaidDiagram(states)), 0644)
}
