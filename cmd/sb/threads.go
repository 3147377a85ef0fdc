package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/idgen"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect stored chat threads",
	}
	cmd.AddCommand(newThreadsListCmd())
	cmd.AddCommand(newThreadsShowCmd())
	return cmd
}

func newThreadsListCmd() *cobra.Command {
	var (
		configPath string
		waiting    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads, most recent activity first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadsList(cmd, configPath, waiting)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().BoolVar(&waiting, "waiting", false, "only threads awaiting an operator reply")
	return cmd
}

func runThreadsList(cmd *cobra.Command, configPath string, waiting bool) error {
	_, store, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	threads, err := store.ListThreads(context.Background())
	if err != nil {
		return err
	}
	if waiting {
		filtered := threads[:0]
		for _, th := range threads {
			if th.AwaitingReply() {
				filtered = append(filtered, th)
			}
		}
		threads = filtered
	}
	writeThreadTable(cmd.OutOrStdout(), threads, time.Now())
	return nil
}

func newThreadsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <threadId>",
		Short: "Print a thread's messages in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThreadsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runThreadsShow(cmd *cobra.Command, configPath, threadID string) error {
	if !idgen.ValidThreadID(threadID) {
		return fmt.Errorf("thread id %q is malformed", threadID)
	}
	_, store, err := openStore(configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.History(context.Background(), threadID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(msgs) == 0 {
		fmt.Fprintf(out, "No messages in thread %s\n", threadID)
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(out, formatMessage(m))
	}
	return nil
}
