package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/ai"
	"github.com/spigell/aspiro/internal/ai/gemini"
	"github.com/spigell/aspiro/internal/auth"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/orchestrator"
	"github.com/spigell/aspiro/internal/secrets"
	"github.com/spigell/aspiro/internal/storage"
	"github.com/spigell/aspiro/internal/transport"
)

// setup builds the logger and loads the config shared by every command.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting with config",
		zap.String("backend", config.Backend.URL),
		zap.Bool("storage", config.Storage != nil && config.Storage.Bucket != ""),
		zap.String("version", version),
	)

	return logger, config
}

func tokenProvider(config *Config) auth.TokenProvider {
	return &auth.SecretToken{
		Source: secrets.Source{
			Name:  "access token",
			Value: config.Token,
			File:  config.TokenFile,
			Env:   "ASPIRO_TOKEN",
		},
	}
}

func newTransport(config *Config, logger *zap.Logger) *transport.Client {
	opts := []transport.Option{
		transport.WithBaseURL(config.Backend.URL),
		transport.WithLogger(logger.With(zap.String("component", "transport"))),
	}
	if ua := strings.TrimSpace(config.Backend.UserAgent); ua != "" {
		opts = append(opts, transport.WithUserAgent(ua))
	}

	return transport.New(tokenProvider(config), opts...)
}

func orchestratorOptions(config *Config, logger *zap.Logger) []orchestrator.Option {
	opts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if n := config.Stream.MinPartialLength; n > 0 {
		opts = append(opts, orchestrator.WithMinPartialLength(n))
	}
	return opts
}

// newStore returns nil when no bucket is configured.
func newStore(ctx context.Context, config *Config, logger *zap.Logger) (*storage.Store, error) {
	sc := config.Storage
	if sc == nil || strings.TrimSpace(sc.Bucket) == "" {
		return nil, nil
	}

	store, err := storage.New(ctx, storage.Config{
		Bucket:    sc.Bucket,
		Endpoint:  sc.Endpoint,
		AccountID: sc.AccountID,
		Region:    sc.Region,
		Prefix:    sc.Prefix,
		AccessKey: secrets.Source{
			Name:  "storage access key",
			Value: sc.AccessKey,
			File:  sc.AccessKeyFile,
			Env:   "ASPIRO_STORAGE_ACCESS_KEY",
		},
		SecretKey: secrets.Source{
			Name:  "storage secret key",
			Value: sc.SecretKey,
			File:  sc.SecretKeyFile,
			Env:   "ASPIRO_STORAGE_SECRET_KEY",
		},
	}, logger.With(zap.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("creating resume storage: %w", err)
	}

	return store, nil
}

// newGenerator returns nil when no api key is available.
func newGenerator(ctx context.Context, config *Config, logger *zap.Logger) (ai.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(config.AI.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider %q", config.AI.Provider)
	}

	gc := config.AI.Gemini
	if gc == nil {
		gc = &GeminiConfig{}
	}

	apiKey, err := secrets.Optional(secrets.Source{
		Name:  "gemini api key",
		Value: gc.APIKey,
		File:  gc.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, nil
	}

	opts := []gemini.Option{}
	if gc.MaxRetries > 0 {
		opts = append(opts, gemini.WithMaxRetries(gc.MaxRetries))
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, gc.Model, logger.With(zap.String("component", "gemini")), opts...)
	if err != nil {
		return nil, err
	}

	return generator, nil
}

func jwtSecret(config *Config) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "jwt secret",
		Value: config.Serve.JWTSecret,
		File:  config.Serve.JWTSecretFile,
		Env:   "ASPIRO_JWT_SECRET",
	})
}
