// Command main provides account and campaign maintenance for operators.
package main

import (
	"context"
	"fmt"
	"os"

	"fundsphere/internal/bootstrap"
	"fundsphere/internal/cache"
	"fundsphere/internal/config"
	"fundsphere/internal/models"
	"fundsphere/internal/notifications"
	"fundsphere/internal/service"

	"github.com/spf13/cobra"
)

// operator is the actor recorded for CLI-initiated changes.
var operator = service.Actor{ID: "cli", Role: models.RoleAdmin}

type app struct {
	rt       *bootstrap.Runtime
	admin    *service.AdminService
	campaign *service.CampaignService
	deleter  *service.UserDeleter
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	store := cache.NewStore(rt.Redis)
	a.rt = rt
	a.deleter = service.NewUserDeleter(rt.Stores.Intents, rt.Stores.Cascade, store).WithLeftoverCheck(rt.Stores.Campaigns)
	a.admin = service.NewAdminService(rt.Stores.Users, a.deleter).WithCache(store)
	a.campaign = service.NewCampaignService(service.CampaignDeps{
		Campaigns: rt.Stores.Campaigns,
		Audit:     rt.Stores.Audit,
		Events:    notifications.NewNotifier(rt.Redis),
		Cache:     store,
	})
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.rt != nil {
		_ = a.rt.Close(ctx)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "admin",
		Short:         "FundSphere maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(cmd.Context())
		},
	}

	root.AddCommand(
		roleCmd(a, "promote", "Promote a user to admin", models.RoleAdmin),
		roleCmd(a, "demote", "Demote a user to the user role", models.RoleUser),
		&cobra.Command{
			Use:   "delete-drafts",
			Short: "Delete every draft campaign",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := a.campaign.DeleteDrafts(cmd.Context(), operator)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d draft campaigns\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete-user <user_id>",
			Short: "Delete a user and their campaigns",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := a.admin.DeleteUser(cmd.Context(), operator, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s (%s)\n", user.Username, user.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Retry pending user deletions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := a.deleter.Reconcile(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d pending deletions\n", n)
				return nil
			},
		},
	)
	return root
}

func roleCmd(a *app, use, short string, role models.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.admin.SetRole(cmd.Context(), args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s (%s) is now %s\n", user.Username, user.ID, user.Role)
			return nil
		},
	}
}

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
