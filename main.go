package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/muvahhid/molayeri-sub002/cmd"
	"github.com/muvahhid/molayeri-sub002/config"
)

func main() {
	root := cmd.NewRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(config.AppVersion),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
