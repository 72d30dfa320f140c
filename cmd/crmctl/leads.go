package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/crm-service/internal/app"
	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/repository"
	"github.com/spec-kit/crm-service/internal/service"
)

func leadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Administrative lead operations",
	}
	cmd.AddCommand(setStatusCmd())
	return cmd
}

func setStatusCmd() *cobra.Command {
	var actorID, reason, department string
	cmd := &cobra.Command{
		Use:   "set-status <lead-id> <status>",
		Short: "Change a lead's status on behalf of an employee",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				actor, err := loadPrincipal(cmd, c, actorID)
				if err != nil {
					return err
				}
				result, err := c.Qualification.ChangeStatus(cmd.Context(), actor, args[0], service.StatusChangeInput{
					Status:     args[1],
					Reason:     reason,
					Department: department,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "lead %s is now %s\n", result.Lead.Lead.ID, result.Lead.Lead.Status)
				if result.Client != nil {
					fmt.Fprintf(out, "client %s created; one-time password: %s\n", result.Client.User.Email, result.Client.OneTimePassword)
				}
				for _, warning := range result.Warnings {
					fmt.Fprintf(out, "warning: %s\n", warning)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "employee account id the change is made as (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "reason, required for unqualified")
	cmd.Flags().StringVar(&department, "department", "", "department for the client account when qualifying")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func loadPrincipal(cmd *cobra.Command, c *app.Container, userID string) (*auth.Principal, error) {
	user, err := c.Users.GetByID(cmd.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("actor %s not found", userID)
		}
		return nil, err
	}
	principal := &auth.Principal{User: user}
	if user.RoleID != nil {
		role, err := c.Roles.GetByID(cmd.Context(), *user.RoleID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		principal.Role = role
	}
	return principal, nil
}
