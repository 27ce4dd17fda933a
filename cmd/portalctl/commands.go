package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/twofly/client-portal-go/internal/app"
	"github.com/twofly/client-portal-go/internal/config"
	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/observability"
	"github.com/twofly/client-portal-go/internal/service"
)

type globalFlags struct {
	dataDir string
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Administer the 2FLY client portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "data directory (overrides DATA_DIR)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newCreateAdminCmd(g),
		newResetAdminCmd(g),
		newSetupCmd(g),
		newGenerateInviteCmd(g),
		newSetClientPasswordCmd(g),
		newMigrateCmd(g),
	)
	return root
}

// withApp loads configuration, opens storage and runs fn.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app.App, out io.Writer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	logger := observability.NewLogger(level)
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close storage", zap.Error(cerr))
		}
	}()
	return fn(ctx, a, cmd.OutOrStdout())
}

type adminFlags struct {
	agencyID   string
	agencyName string
	email      string
	name       string
	username   string
	password   string
}

func (f *adminFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.agencyID, "agency", "", "agency id (slug)")
	cmd.Flags().StringVar(&f.agencyName, "agency-name", "", "agency display name")
	cmd.Flags().StringVar(&f.email, "email", "", "owner email")
	cmd.Flags().StringVar(&f.name, "name", "", "owner name")
	cmd.Flags().StringVar(&f.username, "username", "", "owner username")
	cmd.Flags().StringVar(&f.password, "password", "", "owner password (generated when empty)")
	_ = cmd.MarkFlagRequired("agency")
	_ = cmd.MarkFlagRequired("email")
}

func (f *adminFlags) input() service.CreateAdminInput {
	return service.CreateAdminInput{
		AgencyID:   f.agencyID,
		AgencyName: f.agencyName,
		Email:      f.email,
		Name:       f.name,
		Username:   f.username,
		Password:   f.password,
	}
}

func printAdmin(out io.Writer, res *service.CreateAdminResult) {
	fmt.Fprintf(out, "agency:   %s (%s)\n", res.Agency.ID, res.Agency.Name)
	fmt.Fprintf(out, "owner:    %s <%s>\n", res.User.ID, res.User.Email)
	if res.Generated {
		fmt.Fprintf(out, "password: %s\n", res.Password)
	}
}

func newCreateAdminCmd(g *globalFlags) *cobra.Command {
	f := &adminFlags{}
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an agency (if missing) and an OWNER user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				res, err := a.Admin.CreateAdmin(ctx, f.input())
				if err != nil {
					return err
				}
				printAdmin(out, res)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newResetAdminCmd(g *globalFlags) *cobra.Command {
	var agencyID, identifier, password string
	cmd := &cobra.Command{
		Use:   "reset-admin",
		Short: "Set a new password for an owner and reactivate the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				user, generated, err := a.Admin.ResetAdmin(ctx, agencyID, identifier, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "owner:    %s <%s>\n", user.ID, user.Email)
				if generated != "" {
					fmt.Fprintf(out, "password: %s\n", generated)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agencyID, "agency", "", "agency id")
	cmd.Flags().StringVar(&identifier, "user", "", "owner email or username")
	cmd.Flags().StringVar(&password, "password", "", "new password (generated when empty)")
	_ = cmd.MarkFlagRequired("agency")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSetupCmd(g *globalFlags) *cobra.Command {
	f := &adminFlags{}
	var demoName, demoPassword string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Bootstrap an installation: agency, owner and an optional demo client",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				res, err := a.Admin.Setup(ctx, service.SetupInput{
					CreateAdminInput:   f.input(),
					DemoClientName:     demoName,
					DemoClientPassword: demoPassword,
				})
				if err != nil {
					return err
				}
				printAdmin(out, res.CreateAdminResult)
				if res.Client != nil {
					fmt.Fprintf(out, "client:   %s (%s)\n", res.Client.ID, res.Client.Name)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&demoName, "demo-client", "", "name of a demo client to create")
	cmd.Flags().StringVar(&demoPassword, "demo-client-password", "", "portal password for the demo client")
	return cmd
}

func newGenerateInviteCmd(g *globalFlags) *cobra.Command {
	var agencyID, email, role string
	cmd := &cobra.Command{
		Use:   "generate-invite",
		Short: "Create an invite for an email and print the accept URL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				resp, err := a.Admin.GenerateInvite(ctx, agencyID, email, domain.Role(strings.ToUpper(role)))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "user:    %s <%s> %s\n", resp.User.ID, resp.User.Email, resp.User.Role)
				fmt.Fprintf(out, "invite:  %s\n", resp.InviteURL)
				fmt.Fprintf(out, "expires: %s\n", resp.ExpiresAt.Format("2006-01-02 15:04 MST"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agencyID, "agency", "", "agency id")
	cmd.Flags().StringVar(&email, "email", "", "email to invite")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleStaff), "OWNER, ADMIN or STAFF")
	_ = cmd.MarkFlagRequired("agency")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSetClientPasswordCmd(g *globalFlags) *cobra.Command {
	var clientID, password string
	cmd := &cobra.Command{
		Use:   "set-client-password",
		Short: "Set a client's portal password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				if err := a.Admin.SetClientPassword(ctx, clientID, password); err != nil {
					return err
				}
				fmt.Fprintf(out, "password updated for client %s\n", clientID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&password, "password", "", "new portal password")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newMigrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade every portal document to the current schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app.App, out io.Writer) error {
				res, err := a.Admin.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "documents migrated:   %d\n", res.Documents)
				fmt.Fprintf(out, "credentials hashed:   %d\n", res.Credentials)
				return nil
			})
		},
	}
}
