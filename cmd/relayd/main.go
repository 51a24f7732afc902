package main

import (
	"fmt"
	"os"

	"github.com/lightninglabs/subrelay/relayd"
)

func main() {
	if err := relayd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "[relayd] %v\n", err)
		os.Exit(1)
	}
}
