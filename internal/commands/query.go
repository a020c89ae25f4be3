package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glimte/nuze-go/bridge"
	"github.com/glimte/nuze-go/contracts"
	"github.com/glimte/nuze-go/delivery"
	"github.com/glimte/nuze-go/keyexpr"
	"github.com/glimte/nuze-go/messaging"
	"github.com/glimte/nuze-go/serialization"
)

// getFunc sends one query whose replies go to cb
type getFunc func(ctx context.Context, cb messaging.Callback[contracts.Reply]) error

func (a *App) issuer(ctx context.Context, get func(payload string) getFunc) bridge.Issuer[string] {
	return func(payload string) (*delivery.Receiver[contracts.Reply], error) {
		tx, rx := newChannel[contracts.Reply](a)
		if err := get(payload)(ctx, messaging.ChannelCallback(tx)); err != nil {
			rx.Close()
			return nil, err
		}
		return rx, nil
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func (a *App) newQuerierCommand() *cobra.Command {
	var flags querierFlags
	cmd := &cobra.Command{
		Use:   "querier <keyexpr>",
		Short: "Query once per input item and output one reply list per item",
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
			out, err := a.writer(cmd)
			if err != nil {
				return err
			}
			defer out.Close()
			s, err := a.session(cmd)
			if err != nil {
				return err
			}

			q, err := s.DeclareQuerier(args[0], opts)
			if err != nil {
				return fmt.Errorf("declare querier: %w", err)
			}

			sig, stop := a.interruptSignal(cmd)
			defer stop()

			issue := a.issuer(cmd.Context(), func(payload string) getFunc {
				return func(ctx context.Context, cb messaging.Callback[contracts.Reply]) error {
					return q.Get(ctx, "", cb, messaging.GetOptions{Payload: []byte(payload)})
				}
			})
			c := bridge.NewCorrelator[any, string, serialization.Record](
				in, asString, issue, serialization.Replies{}, sig,
				append(a.bridgeOptions(sig), bridge.WithKeepAlive(q))...,
			)
			defer c.Close()

			for batch := range c.All() {
				if err := out.Write(batch); err != nil {
					return err
				}
			}
			if err := c.Err(); err != nil {
				return err
			}
			return in.Err()
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func (a *App) newGetCommand() *cobra.Command {
	var (
		flags      querierFlags
		payload    string
		encoding   string
		attachment string
	)
	cmd := &cobra.Command{
		Use:   "get <selector>",
		Short: "Send one query and output its replies as a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qopts, err := flags.options()
			if err != nil {
				return err
			}
			opts := messaging.GetOptions{QuerierOptions: qopts, Encoding: encoding}
			if cmd.Flags().Changed("payload") {
				opts.Payload = []byte(payload)
			}
			if attachment != "" {
				opts.Attachment = []byte(attachment)
			}
			s, err := a.session(cmd)
			if err != nil {
				return err
			}
			return a.queryOnce(cmd, args[0], func(selector string) getFunc {
				return func(ctx context.Context, cb messaging.Callback[contracts.Reply]) error {
					return s.Get(ctx, selector, cb, opts)
				}
			})
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&payload, "payload", "", "Query payload")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Query payload encoding")
	cmd.Flags().StringVar(&attachment, "attachment", "", "Query attachment")
	return cmd
}

// queryOnce runs a single-request correlator and writes its batch
func (a *App) queryOnce(cmd *cobra.Command, selector string, get func(string) getFunc) error {
	out, err := a.writer(cmd)
	if err != nil {
		return err
	}
	defer out.Close()

	sig, stop := a.interruptSignal(cmd)
	defer stop()

	c := bridge.NewCorrelator[string, string, serialization.Record](
		bridge.FromSlice([]string{selector}),
		func(s string) (string, bool) { return s, true },
		a.issuer(cmd.Context(), get),
		serialization.Replies{},
		sig,
		a.bridgeOptions(sig)...,
	)
	defer c.Close()

	batch, ok := c.Next()
	if err := c.Err(); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return out.Write(batch)
}

func (a *App) newQueryableCommand() *cobra.Command {
	var (
		complete bool
		origin   string
		reply    string
		encoding string
	)
	cmd := &cobra.Command{
		Use:   "queryable <keyexpr>",
		Short: "Stream the queries received on a key expression, optionally answering them",
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

			answer := cmd.Flags().Changed("reply")
			key := args[0]
			tx, rx := newChannel[*contracts.Query](a)
			cb := messaging.Callback[*contracts.Query]{
				Call: func(q *contracts.Query) {
					if err := tx.Send(q); err != nil {
						a.logger.Debug("query not recorded", "keyexpr", key, "error", err)
					}
					if answer {
						sample := contracts.NewSample(replyKey(key, q), []byte(reply))
						if encoding != "" {
							sample.Encoding = encoding
						}
						if err := q.Reply(sample); err != nil {
							a.logger.Warn("reply failed", "keyexpr", key, "error", err)
						}
					}
				},
				Drop: tx.Close,
			}

			qa, err := s.DeclareQueryable(key, cb, messaging.QueryableOptions{Complete: complete, AllowedOrigin: allowed})
			if err != nil {
				rx.Close()
				return err
			}
			return emit(a, cmd, rx, qa, 0, serialization.QueryRecord)
		},
	}
	cmd.Flags().BoolVar(&complete, "complete", false, "Declare the queryable as complete")
	cmd.Flags().StringVar(&origin, "allowed-origin", "", "Allowed origin: any, remote or session-local")
	cmd.Flags().StringVar(&reply, "reply", "", "Answer every query with this payload")
	cmd.Flags().StringVar(&encoding, "reply-encoding", "", "Encoding of the reply payload")
	return cmd
}

// replyKey answers on the declared key when it is concrete, and on the
// queried key otherwise
func replyKey(declared string, q *contracts.Query) string {
	if !keyexpr.IsWild(declared) {
		return declared
	}
	return q.KeyExpr
}
