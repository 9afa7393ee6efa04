package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func createCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new transaction-log domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().CreateDomain(args[0]); err != nil {
				return err
			}
			fmt.Printf("domain %q created\n", args[0])
			return nil
		},
	}
}

func listCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := client().ListDomains()
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}
}

func statusCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Show a domain's (begin, end, count)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			begin, end, count, err := client().DomainStatus(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("begin=%d end=%d count=%d\n", begin, end, count)
			return nil
		},
	}
}

func commitCommand(client func() *Client) *cobra.Command {
	var serial uint64
	var typeTag uint32

	cmd := &cobra.Command{
		Use:   "commit <name> <data>",
		Short: "Append one entry to a domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := entryPayload{Serial: serial, TypeTag: typeTag, Data: []byte(args[1])}
			if err := client().DomainCommit(args[0], []entryPayload{entry}); err != nil {
				return err
			}
			fmt.Println("committed")
			return nil
		},
	}
	cmd.Flags().Uint64Var(&serial, "serial", 0, "entry serial number")
	cmd.Flags().Uint32Var(&typeTag, "type-tag", 0, "entry type tag")
	return cmd
}

func pruneCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <name> <to>",
		Short: "Erase parts fully below the given serial",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			return client().DomainPrune(args[0], to)
		},
	}
}

func visitCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "visit <name> <from> <to>",
		Short: "Open a visit session over [from, to] and print its id",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			to, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return err
			}
			id, err := client().DomainVisit(args[0], from, to)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, id)
			return nil
		},
	}
}

func followCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <name> <sessionID>",
		Short: "Stream a visit session's batches until it finishes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			return client().FollowSession(args[0], id, func(batch sessionBatch) {
				fmt.Printf("serials=%v state=%d\n", batch.Serials, batch.State)
			})
		},
	}
}

func syncCommand(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <name> <syncTo>",
		Short: "Wait until the domain's synced watermark reaches syncTo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			syncTo, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return err
			}
			status, syncedTo, err := client().DomainSync(args[0], syncTo)
			if err != nil {
				return err
			}
			fmt.Printf("status=%d syncedTo=%d\n", status, syncedTo)
			return nil
		},
	}
}
