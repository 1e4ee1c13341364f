package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-relay-go/modules/users"
)

func newRegisterUserCmd(opts *rootOptions) *cobra.Command {
	var profile users.Profile
	cmd := &cobra.Command{
		Use:   "register-user",
		Short: "Register a user; the outbox relay publishes the resulting event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			id, err := users.NewService(a.pool, a.users, a.logger).RegisterUser(cmd.Context(), profile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&profile.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&profile.Email, "email", "", "email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
