package commands

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/glimte/nuze-go/config"
	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/messaging"
	"github.com/glimte/nuze-go/serialization"
)

func (a *App) newScoutCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "scout [config-json]",
		Short: "Discover the nodes reachable with a session configuration",
		Long: `Scout reports every node answering discovery probes. Without an argument
the configuration of the selected session is used; otherwise the argument is
a JSON session configuration such as {"transport":"nats","url":"nats://localhost:4222"}.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scfg, err := a.scoutConfig(args)
			if err != nil {
				return err
			}

			tx, rx := newChannel[contracts.Hello](a)
			sc, err := messaging.Scout(cmd.Context(), scfg, messaging.ChannelCallback(tx), a.logger)
			if err != nil {
				rx.Close()
				return err
			}
			return emit(a, cmd, rx, sc, timeout, serialization.HelloRecord)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Scout for this long and output one list")
	return cmd
}

func (a *App) scoutConfig(args []string) (messaging.Config, error) {
	if len(args) == 1 {
		s, err := config.ParseSession([]byte(args[0]))
		if err != nil {
			return messaging.Config{}, err
		}
		return s.Messaging("scout"), nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return messaging.Config{}, err
	}
	return cfg.Session(a.sessionName)
}

func (a *App) newZIDCommand() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "zid",
		Short: "Print the session id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			zid := s.ZID()
			if short {
				return a.writeScalar(cmd, zid.Short())
			}
			return a.writeScalar(cmd, zid.String())
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print the first 8 characters only")
	return cmd
}

func (a *App) newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the session configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rec, err := cfg.Record(a.sessionName)
			if err != nil {
				return err
			}
			out, err := a.writer(cmd)
			if err != nil {
				return err
			}
			if err := out.Write(rec); err != nil {
				return err
			}
			return out.Close()
		},
	}
}

func (a *App) newLogPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log-path",
		Short: "Print the directory holding the process logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.logs == nil {
				return errors.New("logging is not set up")
			}
			return a.writeScalar(cmd, a.logs.Dir)
		},
	}
}
