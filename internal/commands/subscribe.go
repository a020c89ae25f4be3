package commands

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/nuze-go/bridge"
	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/messaging"
	"github.com/glimte/nuze-go/serialization"
)

func (a *App) newSubCommand() *cobra.Command {
	var (
		origin  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sub <keyexpr>",
		Short: "Stream the samples published on a key expression",
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
			sub, err := s.DeclareSubscriber(args[0], messaging.ChannelCallback(tx), messaging.SubscriberOptions{AllowedOrigin: allowed})
			if err != nil {
				rx.Close()
				return err
			}
			return a.emitSamples(cmd, rx, sub, timeout)
		},
	}
	cmd.Flags().StringVar(&origin, "allowed-origin", "", "Allowed origin: any, remote or session-local")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Collect for this long and output one list")
	return cmd
}

// emitSamples writes the samples of rx as a live stream, or as one list
// collected for timeout when it is set
func (a *App) emitSamples(cmd *cobra.Command, rx *delivery.Receiver[contracts.Sample], keepAlive io.Closer, timeout time.Duration) error {
	return emit(a, cmd, rx, keepAlive, timeout, serialization.SampleRecord)
}

func emit[T any](a *App, cmd *cobra.Command, rx *delivery.Receiver[T], keepAlive io.Closer, timeout time.Duration, convert func(T) serialization.Record) error {
	out, err := a.writer(cmd)
	if err != nil {
		rx.Close()
		_ = keepAlive.Close()
		return err
	}
	defer out.Close()

	sig, stop := a.interruptSignal(cmd)
	defer stop()
	opts := a.bridgeOptions(sig)

	if timeout > 0 {
		return out.Write(bridge.Aggregate(rx, deadline(timeout), keepAlive, convert, opts...))
	}

	b := bridge.New(rx, sig, keepAlive, opts...)
	defer b.Close()
	for rec := range bridge.Stream(b, convert) {
		if err := out.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
