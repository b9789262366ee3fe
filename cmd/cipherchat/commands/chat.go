package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"cipherchat/internal/app"
	"cipherchat/internal/domain"
	"cipherchat/internal/services/message"
)

const chatHelp = `commands:
  /peers          list connected peers
  /to <id>        send plain lines to <id>
  /whoami         show your identity and key fingerprint
  /quit           leave
  <id> <text>     send <text> to a listed peer
  <text>          send <text> to the current peer`

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive encrypted chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, stop, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			return runChat(cmd.Context(), c, done, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

type lineKind int

const (
	lineEmpty lineKind = iota
	lineHelp
	linePeers
	lineWhoami
	lineQuit
	lineSelect
	lineSend
	lineNoPeer
	lineUnknown
)

type chatLine struct {
	kind lineKind
	to   domain.ConnectionID
	text string
}

// parseLine interprets one input line. A leading word naming a listed peer
// addresses that peer; anything else goes to current.
func parseLine(line string, current domain.ConnectionID, peers []domain.ConnectionID) chatLine {
	line = strings.TrimSpace(line)
	if line == "" {
		return chatLine{kind: lineEmpty}
	}
	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(line)
		switch fields[0] {
		case "/help":
			return chatLine{kind: lineHelp}
		case "/peers":
			return chatLine{kind: linePeers}
		case "/whoami":
			return chatLine{kind: lineWhoami}
		case "/quit", "/exit":
			return chatLine{kind: lineQuit}
		case "/to":
			if len(fields) != 2 {
				return chatLine{kind: lineUnknown, text: line}
			}
			return chatLine{kind: lineSelect, to: domain.ConnectionID(fields[1])}
		}
		return chatLine{kind: lineUnknown, text: line}
	}

	if head, rest, ok := strings.Cut(line, " "); ok {
		for _, p := range peers {
			if string(p) == head {
				return chatLine{kind: lineSend, to: p, text: strings.TrimSpace(rest)}
			}
		}
	}
	if current == "" {
		return chatLine{kind: lineNoPeer, text: line}
	}
	return chatLine{kind: lineSend, to: current, text: line}
}

func runChat(ctx context.Context, c *app.ClientApp, done <-chan error, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintf(out, "connected as %s (key %s). /help for commands.\n", c.Messages.Self(), c.Sessions.Fingerprint())
	var current domain.ConnectionID
	events := c.Messages.Events()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-done:
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "relay closed the connection")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printEvent(out, ev)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cl := parseLine(line, current, c.Messages.Peers())
			switch cl.kind {
			case lineEmpty:
			case lineHelp:
				fmt.Fprintln(out, chatHelp)
			case linePeers:
				printPeers(out, c.Messages.Peers())
			case lineWhoami:
				fmt.Fprintf(out, "you are %s (key %s)\n", c.Messages.Self(), c.Sessions.Fingerprint())
			case lineQuit:
				return nil
			case lineSelect:
				current = cl.to
				fmt.Fprintf(out, "now talking to %s\n", current)
			case lineNoPeer:
				fmt.Fprintln(out, "no current peer; use /to <id> or prefix the line with a peer id")
			case lineUnknown:
				fmt.Fprintf(out, "unknown command %q; /help for commands\n", cl.text)
			case lineSend:
				// Sending may wait for the peer's key; do not stall the UI.
				go func(to domain.ConnectionID, text string) {
					if err := c.Messages.Send(ctx, to, []byte(text)); err != nil {
						if errors.Is(err, message.ErrClosed) || errors.Is(err, context.Canceled) {
							return
						}
						fmt.Fprintf(out, "! send to %s failed: %v\n", to, err)
					}
				}(cl.to, cl.text)
			}
		}
	}
}

func printEvent(out io.Writer, ev domain.Event) {
	switch e := ev.(type) {
	case domain.PeerListEvent:
		printPeers(out, e.Peers)
	case domain.MessageEvent:
		fmt.Fprintf(out, "[%s %s] %s\n", e.Message.Received.Format("15:04:05"), e.Message.From, e.Message.Plaintext)
	case domain.NoticeEvent:
		fmt.Fprintf(out, "! relay: %v\n", message.NoticeErr(e))
	case domain.FailureEvent:
		if e.Peer != "" {
			fmt.Fprintf(out, "! %s: %v\n", e.Peer, e.Err)
		} else {
			fmt.Fprintf(out, "! %v\n", e.Err)
		}
	}
}

func printPeers(out io.Writer, peers []domain.ConnectionID) {
	if len(peers) == 0 {
		fmt.Fprintln(out, "* no other participants connected")
		return
	}
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = string(p)
	}
	fmt.Fprintf(out, "* peers: %s\n", strings.Join(ids, ", "))
}
