package main

import (
	"context"
	"os"

	"github.com/meds-inspect/meds-inspect/core"
)

func main() {
	defer core.Sync()
	ctx := core.WithDefaultLogger(context.Background(), "main")
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		core.Errorf(ctx, "%v", err)
		core.Sync()
		os.Exit(1)
	}
}
