package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSignupCmd(g *globalFlags) *cobra.Command {
	var pw string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account with your college email",
		Example: `  marketplace signup you@nitc.ac.in
  MARKETPLACE_PASSWORD=secret1 marketplace signup you@nitc.ac.in`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				p, err := password(cmd, pw)
				if err != nil {
					return err
				}
				notice, err := a.session.SignUp(ctx, args[0], p)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), notice)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&pw, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func newLoginCmd(g *globalFlags) *cobra.Command {
	var pw string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and keep the session for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				p, err := password(cmd, pw)
				if err != nil {
					return err
				}
				if err := a.session.Login(ctx, args[0], p); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.session.Banner())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&pw, "password", "p", "", "Account password (prompted when empty)")
	return cmd
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				err := a.session.SignOut(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), a.session.Banner())
				return err
			})
		},
	}
}

func newWhoamiCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				fmt.Fprintln(cmd.OutOrStdout(), a.session.Banner())
				return nil
			})
		},
	}
}

func newResetPasswordCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Mail a password recovery link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				notice, err := a.session.RequestPasswordReset(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), notice)
				return nil
			})
		},
	}
}

func newSetPasswordCmd(g *globalFlags) *cobra.Command {
	var (
		token string
		pw    string
	)
	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Choose a new password using the token from a recovery link",
		Example: `  # token is the "token" query parameter of the emailed link
  marketplace set-password --token 3f9c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				if _, err := a.api.ExchangeRecoveryToken(ctx, token); err != nil {
					return err
				}
				p, err := password(cmd, pw)
				if err != nil {
					return err
				}
				if err := a.api.UpdatePassword(ctx, p); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password updated. "+a.session.Banner())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Recovery token from the emailed link")
	cmd.Flags().StringVarP(&pw, "password", "p", "", "New password (prompted when empty)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}
