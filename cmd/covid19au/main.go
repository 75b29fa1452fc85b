package main

import (
	"context"
	"covid19au/cmd/covid19au/commands"
	"covid19au/lib/serviceutil"
)

func main() {
	ctx, cancel := serviceutil.SignalContext(context.Background())
	defer cancel()

	commands.Execute(ctx)
}
