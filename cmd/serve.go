package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/auth"
	"github.com/spigell/aspiro/internal/backend"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development coaching backend",
	Run: func(cmd *cobra.Command, _ []string) {
		insecure, _ := cmd.Flags().GetBool("insecure")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log, config := setup()
		log.Info("starting the aspiro backend", zap.String("version", version))

		generator, err := newGenerator(ctx, config, log)
		if err != nil {
			log.Fatal("creating a generator", zap.Error(err))
		}
		if generator == nil {
			log.Warn("gemini api key is not configured; coaching endpoints will answer 503")
		} else {
			log.Info("using model", zap.String("model", generator.Model()))
		}

		var resumes backend.ResumeSource
		store, err := newStore(ctx, config, log)
		if err != nil {
			log.Fatal("creating resume storage", zap.Error(err))
		}
		if store != nil {
			resumes = store
		} else {
			log.Warn("storage is not configured; resume endpoints will answer 503")
		}

		var verifier backend.TokenVerifier
		if !insecure {
			secret, err := jwtSecret(config)
			if err != nil {
				log.Fatal("jwt secret is required unless --insecure is set", zap.Error(err))
			}
			issuer, err := auth.NewIssuer(secret, config.Serve.TokenTTL)
			if err != nil {
				log.Fatal("creating a token issuer", zap.Error(err))
			}
			verifier = issuer
		} else {
			log.Warn("authentication is disabled")
		}

		server := backend.New(generator, resumes, verifier, log.With(zap.String("component", "backend")))
		if err := server.ListenAndServe(ctx, config.Serve.Addr); err != nil {
			log.Fatal("serving", zap.Error(err))
		}

		log.Info("exiting", zap.String("reason", "shutdown"))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().Bool("insecure", false, "accept requests without a bearer token")

	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}
