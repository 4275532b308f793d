package main

import (
	"fmt"
	"os"

	"github.com/tphakala/dspcore/cmd"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/logger"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings := &conf.Settings{}
	defer func() {
		_ = logger.Global().Close()
	}()

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
