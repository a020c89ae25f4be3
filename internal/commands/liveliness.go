package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/nuze-go/bridge"
	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/messaging"
)

func (a *App) newLivelinessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveliness",
		Short: "Declare and observe liveliness tokens",
	}
	cmd.AddCommand(
		a.newTokenCommand(),
		a.newLivelinessSubCommand(),
		a.newLivelinessGetCommand(),
	)
	return cmd
}

func (a *App) newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <keyexpr>",
		Short: "Hold a liveliness token until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			token, err := s.Liveliness().DeclareToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			sig, stop := a.interruptSignal(cmd)
			defer stop()

			// Nothing is ever sent: the bridge only waits for the signal
			// and then withdraws the token.
			tx, rx := newChannel[struct{}](a)
			defer tx.Close()
			b := bridge.New(rx, sig, token, a.bridgeOptions(sig)...)
			for range b.All() {
			}
			return b.Close()
		},
	}
}

func (a *App) newLivelinessSubCommand() *cobra.Command {
	var (
		history bool
		origin  string
	)
	cmd := &cobra.Command{
		Use:   "sub <keyexpr>",
		Short: "Stream liveliness changes on a key expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			allowed, err := parseOrigin(origin)
			if err != nil {
				return err
			}
			s, err := a.session(cmd)
			if err != nil {
				return err
			}

			tx, rx := newChannel[contracts.Sample](a)
			sub, err := s.Liveliness().DeclareSubscriber(cmd.Context(), args[0], messaging.ChannelCallback(tx),
				messaging.LivelinessSubscriberOptions{History: history, AllowedOrigin: allowed})
			if err != nil {
				rx.Close()
				return err
			}
			return a.emitSamples(cmd, rx, sub, 0)
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "Report the tokens already alive first")
	cmd.Flags().StringVar(&origin, "allowed-origin", "", "Allowed origin: any, remote or session-local")
	return cmd
}

func (a *App) newLivelinessGetCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "get <keyexpr>",
		Short: "List the liveliness tokens alive on a key expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			opts := messaging.GetOptions{QuerierOptions: messaging.QuerierOptions{Timeout: timeout}}
			return a.queryOnce(cmd, args[0], func(key string) getFunc {
				return func(ctx context.Context, cb messaging.Callback[contracts.Reply]) error {
					return s.Liveliness().Get(ctx, key, cb, opts)
				}
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Query timeout")
	return cmd
}
