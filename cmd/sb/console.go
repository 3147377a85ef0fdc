package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/client"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/logging"
	"github.com/zulandar/switchboard/internal/models"
)

const consoleHelp = `Commands:
  /threads         list threads
  /open <threadId> open a thread and show its history
  /reply <text>    reply in the open thread (plain text does the same)
  /help            show this help
  /quit            exit`

func newConsoleCmd() *cobra.Command {
	var (
		serverURL string
		token     string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Operator console on the live all-threads feed",
		Long:  "Connects to the all-threads feed with an operator token and reads commands from stdin.\n\n" + consoleHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv(config.EnvPrefix + "TOKEN")
			}
			if token == "" {
				return fmt.Errorf("operator token required: pass --token or set %sTOKEN", config.EnvPrefix)
			}
			return runConsole(cmd, serverURL, token, logLevel)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Switchboard server URL")
	cmd.Flags().StringVar(&token, "token", "", "operator token (default $SB_TOKEN)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level for connection diagnostics")
	return cmd
}

func runConsole(cmd *cobra.Command, serverURL, token, logLevel string) error {
	out := &lineWriter{out: cmd.OutOrStdout()}
	log := logging.New(config.LogConfig{Level: logLevel}, cmd.ErrOrStderr())

	console, err := client.NewConsole(client.ConsoleOpts{
		API: client.NewAPI(serverURL, token),
		OnThreads: func(threads []models.ThreadSummary) {
			out.println(fmt.Sprintf("· %d threads, %d awaiting reply", len(threads), countWaiting(threads)))
		},
		OnMessage: func(m models.Message) { out.println(formatMessage(m)) },
		Log:       log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- console.Run(ctx) }()

	// Token problems surface immediately instead of after the first command.
	select {
	case err := <-runErr:
		return err
	case <-time.After(300 * time.Millisecond):
	}

	err = readLines(cmd.InOrStdin(), func(line string) bool {
		return consoleCommand(ctx, console, out, line)
	})
	cancel()
	if rerr := <-runErr; rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// consoleCommand executes one input line and reports whether to continue.
func consoleCommand(ctx context.Context, c *client.Console, out *lineWriter, line string) bool {
	cmd, arg := line, ""
	if i := strings.IndexByte(line, ' '); i > 0 {
		cmd, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	if !strings.HasPrefix(cmd, "/") {
		cmd, arg = "/reply", line
	}

	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		out.println(consoleHelp)
	case "/threads":
		if err := c.Refresh(ctx); err != nil {
			out.println("error: " + describeError(err))
			return true
		}
		var b strings.Builder
		writeThreadTable(&b, c.Threads(), time.Now())
		out.println(strings.TrimRight(b.String(), "\n"))
	case "/open":
		if arg == "" {
			out.println("usage: /open <threadId>")
			return true
		}
		history, err := c.Open(ctx, arg)
		if err != nil {
			out.println("error: " + describeError(err))
			return true
		}
		out.println(fmt.Sprintf("── %s (%d messages)", arg, len(history)))
		for _, m := range history {
			out.println(formatMessage(m))
		}
	case "/reply":
		if arg == "" {
			out.println("usage: /reply <text>")
			return true
		}
		if _, err := c.Reply(ctx, arg); err != nil {
			out.println("error: " + describeError(err))
		}
	default:
		out.println("unknown command " + cmd + "; try /help")
	}
	return ctx.Err() == nil
}
