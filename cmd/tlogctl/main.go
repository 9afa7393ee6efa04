// Command tlogctl is a cobra-based CLI that dials a tlogd instance's
// HTTP surface to create, inspect and maintain transaction-log domains.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var serverAddr string

	root := &cobra.Command{
		Use:   "tlogctl",
		Short: "Operate a transaction-log server",
		Long:  "tlogctl dials a running tlogd instance's HTTP surface to create, inspect and maintain domains.",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://127.0.0.1:12100", "tlogd base URL")

	client := func() *Client { return NewClient(serverAddr) }

	root.AddCommand(
		createCommand(client),
		listCommand(client),
		statusCommand(client),
		commitCommand(client),
		pruneCommand(client),
		visitCommand(client),
		followCommand(client),
		syncCommand(client),
	)
	return root
}
