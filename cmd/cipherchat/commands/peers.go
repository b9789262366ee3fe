package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"cipherchat/internal/domain"
)

func peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the identities connected to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, stop, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "you are %s (key %s)\n", c.Messages.Self(), c.Sessions.Fingerprint())
			for ev := range c.Messages.Events() {
				if pl, ok := ev.(domain.PeerListEvent); ok {
					for _, p := range pl.Peers {
						fmt.Fprintln(out, p)
					}
					return nil
				}
			}
			return fmt.Errorf("relay closed the connection before sending a peer list")
		},
	}
}
