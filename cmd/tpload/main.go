// Command tpload splits Baichuan checkpoints into tensor-parallel shards.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cobra.CheckErr(NewCLI().ExecuteContext(ctx))
}
