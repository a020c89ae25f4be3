package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/glimte/nuze-go/internal/wire"
	"github.com/glimte/nuze-go/serialization"
)

func (a *App) newDecodeCommand() *cobra.Command {
	decode := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw protocol messages",
	}
	decode.AddCommand(&cobra.Command{
		Use:   "scouting-msg",
		Short: "Decode a scouting probe or answer read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("decode: read input: %w", err)
			}
			msg, err := wire.DecodeScouting(body)
			if err != nil {
				return fmt.Errorf("decode scouting-msg: %w", err)
			}
			out, err := a.writer(cmd)
			if err != nil {
				return err
			}
			if err := out.Write(serialization.ScoutingRecord(msg)); err != nil {
				return err
			}
			return out.Close()
		},
	})
	return decode
}
