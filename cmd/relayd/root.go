package main

import (
	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-relay-go/config"
)

type rootOptions struct {
	configFile string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configFile)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "relayd",
		Short:         "Reliable event delivery daemon",
		Long:          "relayd moves captured domain events from the outbox to their handlers and stores received integration events in the inbox.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./relayd.yaml)")
	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newReprocessCmd(opts),
		newRegisterUserCmd(opts),
	)
	return cmd
}
