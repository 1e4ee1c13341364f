package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/relay"
)

var ErrUnknownStore = errors.New("unknown store, want outbox or inbox")

func newReprocessCmd(opts *rootOptions) *cobra.Command {
	var (
		store string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Dispatch again the processed messages that recorded a handler failure",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			var r *relay.Relay
			switch store {
			case "outbox":
				r = a.outboxRelay()
			case "inbox":
				r = a.inboxRelay()
			default:
				return errors.Wrap(ErrUnknownStore, store)
			}
			result, err := r.Reprocess(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: selected %d, failed %d\n", store, result.Selected, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&store, "store", "outbox", "store to reprocess: outbox or inbox")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum messages, 0 for the configured batch size")
	return cmd
}
