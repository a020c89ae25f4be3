package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newPubCommand() *cobra.Command {
	var flags publisherFlags
	cmd := &cobra.Command{
		Use:   "pub <keyexpr>",
		Short: "Publish every input item on a key expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			in, err := a.reader(cmd)
			if err != nil {
				return err
			}
			s, err := a.session(cmd)
			if err != nil {
				return err
			}

			pub, err := s.DeclarePublisher(args[0], opts)
			if err != nil {
				return fmt.Errorf("declare publisher: %w", err)
			}
			defer pub.Close()

			sig, stop := a.interruptSignal(cmd)
			defer stop()

			for n := 1; !sig.IsSet(); n++ {
				v, ok := in.Next()
				if !ok {
					break
				}
				payload, ok := v.(string)
				if !ok {
					return fmt.Errorf("pub: input item %d is a %T, not a string", n, v)
				}
				if err := pub.Put(cmd.Context(), []byte(payload)); err != nil {
					return err
				}
			}
			return in.Err()
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *App) newPutCommand() *cobra.Command {
	var flags putFlags
	cmd := &cobra.Command{
		Use:   "put <keyexpr> <payload>",
		Short: "Publish one sample",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			return s.Put(cmd.Context(), args[0], []byte(args[1]), opts)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *App) newDeleteCommand() *cobra.Command {
	var flags putFlags
	cmd := &cobra.Command{
		Use:   "delete <keyexpr>",
		Short: "Publish a deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			return s.Delete(cmd.Context(), args[0], opts)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}
