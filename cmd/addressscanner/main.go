package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "addressscanner",
		Usage: "Scan an EVM chain from its head down to genesis and collect every address seen in transactions",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the address scanner",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "remove",
				Usage:  "Remove the persisted checkpoint and addresses of the selected backend",
				Flags:  removeFlags(),
				Action: remove,
			},
		},
	}
}
