package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/logsync/internal/client/cli"
)

// Set with -ldflags "-X main.buildVersion=..." at release time.
var (
	buildVersion = "N/A"
	buildDate    = "N/A"
	buildCommit  = "N/A"
)

func main() {
	root := cli.NewRootCommand()
	root.Version = fmt.Sprintf("%s (built %s, commit %s)", buildVersion, buildDate, buildCommit)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "logsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
