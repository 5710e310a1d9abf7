package main

import (
	"context"
	"transitperf/cmd/transitperf/commands"
	"transitperf/internal/components/serviceutil"
)

func main() {
	ctx, stop := serviceutil.SignalContext(context.Background())
	defer stop()
	commands.ExecuteContext(ctx)
}
