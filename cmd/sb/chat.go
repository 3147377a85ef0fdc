package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/client"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/logging"
	"github.com/zulandar/switchboard/internal/models"
)

type chatOpts struct {
	server   string
	identity string
	name     string
	contact  string
	logLevel string
}

func newChatCmd() *cobra.Command {
	var opts chatOpts

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with support as a guest",
		Long: `Opens a guest chat session. Each line read from stdin is sent as a message;
replies are printed as they arrive. The thread id is remembered in the identity
file so the conversation resumes on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "Switchboard server URL")
	cmd.Flags().StringVar(&opts.identity, "identity", defaultIdentityPath(), "file remembering the thread id")
	cmd.Flags().StringVar(&opts.name, "name", "", "your name, shown to operators")
	cmd.Flags().StringVar(&opts.contact, "contact", "", "email or phone for follow-up")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level for connection diagnostics")
	return cmd
}

func defaultIdentityPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".switchboard-thread"
	}
	return filepath.Join(dir, "switchboard", "thread")
}

// lineWriter serializes prints from the feed goroutine and the input loop.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) println(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintln(w.out, s)
}

func runChat(cmd *cobra.Command, opts chatOpts) error {
	out := &lineWriter{out: cmd.OutOrStdout()}
	log := logging.New(config.LogConfig{Level: opts.logLevel}, cmd.ErrOrStderr())

	guest, err := client.NewGuest(client.GuestOpts{
		API:       client.NewAPI(opts.server, ""),
		Identity:  client.FileIdentity{Path: opts.identity},
		Name:      opts.name,
		Contact:   opts.contact,
		OnMessage: func(m models.Message) { out.println(formatMessage(m)) },
		Log:       log,
	})
	if err != nil {
		return err
	}
	if id := guest.ThreadID(); id != "" {
		out.println(fmt.Sprintf("Resuming thread %s", id))
	}

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		guest.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	return readLines(cmd.InOrStdin(), func(line string) bool {
		if _, err := guest.Send(ctx, line); err != nil {
			out.println("error: " + describeError(err))
		}
		return ctx.Err() == nil
	})
}

// readLines calls fn for each non-blank trimmed line until EOF or fn
// returns false.
func readLines(in io.Reader, fn func(line string) bool) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	return scanner.Err()
}

// describeError renders server rejections without the client prefix.
func describeError(err error) string {
	var ae *client.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
