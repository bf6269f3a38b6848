package main

import (
	"context"
	"fmt"
	"os"

	"github.com/compozy/stackops/cmd"
)

func main() {
	cmd.InitCommands()
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
