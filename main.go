package main

import (
	"fmt"
	"os"
	"time"

	"github.com/tphakala/longrec/cmd"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	defer func() {
		telemetry.Flush(2 * time.Second)
		_ = logger.Global().Close()
	}()

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		return 1
	}
	return 0
}
