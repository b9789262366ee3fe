package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
	"cipherchat/internal/protocol/wire"
	"cipherchat/internal/services/message"
)

// send <peer> <message>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	var linger time.Duration
	cmd := &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, done, stop, err := connect(ctx)
			if err != nil {
				return err
			}
			defer stop()

			// Drain events so the read loop never blocks; keep notices.
			notices := make(chan domain.NoticeEvent, 1)
			go func() {
				for ev := range c.Messages.Events() {
					if n, ok := ev.(domain.NoticeEvent); ok && n.Code == wire.CodeRecipientUnavailable {
						select {
						case notices <- n:
						default:
						}
					}
				}
			}()

			peer := domain.ConnectionID(args[0])
			if err := c.Messages.Send(ctx, peer, []byte(args[1])); err != nil {
				return err
			}

			// The relay only answers failures; give it a moment to object.
			select {
			case n := <-notices:
				return message.NoticeErr(n)
			case err := <-done:
				if err != nil {
					return err
				}
			case <-time.After(linger):
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	cmd.Flags().DurationVar(&linger, "linger", 500*time.Millisecond, "how long to wait for a delivery error after sending")
	return cmd
}
