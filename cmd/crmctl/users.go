package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/crm-service/internal/app"
	"github.com/spec-kit/crm-service/internal/service"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Employee account operations",
	}
	cmd.AddCommand(createUserCmd())
	return cmd
}

func createUserCmd() *cobra.Command {
	var input service.StaffAccountInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an employee account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				user, err := c.Auth.CreateStaffAccount(cmd.Context(), input)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s <%s> as %s\n", user.ID, user.Email, input.RoleName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "", "display name")
	cmd.Flags().StringVar(&input.Email, "email", "", "login email")
	cmd.Flags().StringVar(&input.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&input.RoleName, "role", "", "role name, e.g. sales_agent")
	for _, name := range []string{"name", "email", "password", "role"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
