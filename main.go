package main

import (
	"os"
	"runtime/debug"

	"github.com/veilmint/veilmint/cmd"
	"github.com/veilmint/veilmint/logx"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			_ = logx.Errorf("MINT CRASHED: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
