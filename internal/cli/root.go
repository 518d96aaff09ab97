// Package cli holds the marketplace command tree: the backend service
// (serve) and the interactive client commands that talk to it.
package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/campus-marketplace/internal/client"
)

const defaultAPIURL = "http://localhost:8080"

type globalFlags struct {
	apiURL      string
	sessionFile string
}

func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "marketplace",
		Short: "Campus marketplace for buying, selling and sharing within one college",
		Long: `Marketplace is a classifieds board restricted to one institution's email domain.

Run "marketplace serve" to start the backend. Every other command is a client
of that backend: sign up or log in, then browse, post and manage listings.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if !cmd.Flags().Changed("api-url") {
				if v := os.Getenv("MARKETPLACE_API_URL"); v != "" {
					g.apiURL = v
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&g.apiURL, "api-url", defaultAPIURL, "Base URL of the marketplace backend (env MARKETPLACE_API_URL)")
	cmd.PersistentFlags().StringVar(&g.sessionFile, "session-file", client.DefaultSessionPath(), "Where the login session is kept")

	cmd.AddCommand(
		newServeCmd(),
		newSignupCmd(g),
		newLoginCmd(g),
		newLogoutCmd(g),
		newWhoamiCmd(g),
		newResetPasswordCmd(g),
		newSetPasswordCmd(g),
		newFeedCmd(g),
		newPostCmd(g),
		newToggleCmd(g),
		newDeleteCmd(g),
	)
	return cmd
}
