package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the development backend",
	Run: func(cmd *cobra.Command, _ []string) {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		log, config := setup()
		if ttl <= 0 {
			ttl = config.Serve.TokenTTL
		}

		secret, err := jwtSecret(config)
		if err != nil {
			log.Fatal("getting the jwt secret", zap.Error(err))
		}

		issuer, err := auth.NewIssuer(secret, ttl)
		if err != nil {
			log.Fatal("creating a token issuer", zap.Error(err))
		}

		token, err := issuer.Issue(subject)
		if err != nil {
			log.Fatal("issuing a token", zap.Error(err))
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringP("subject", "s", "", "token subject")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default serve.token-ttl)")
}
