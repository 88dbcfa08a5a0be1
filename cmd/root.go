package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "aspiro"
)

type Config struct {
	Backend   *BackendConfig `mapstructure:"backend"`
	Token     string         `mapstructure:"token"`
	TokenFile string         `mapstructure:"token-file"`
	Stream    *StreamConfig  `mapstructure:"stream"`
	Storage   *StorageConfig `mapstructure:"storage"`
	Serve     *ServeConfig   `mapstructure:"serve"`
	AI        *AIConfig      `mapstructure:"ai"`
}

type BackendConfig struct {
	URL       string `mapstructure:"url"`
	UserAgent string `mapstructure:"user-agent"`
}

type StreamConfig struct {
	MinPartialLength int  `mapstructure:"min-partial-length"`
	NoRetryPrompt    bool `mapstructure:"no-retry-prompt"`
}

type StorageConfig struct {
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccountID     string `mapstructure:"account-id"`
	Region        string `mapstructure:"region"`
	Prefix        string `mapstructure:"prefix"`
	AccessKey     string `mapstructure:"access-key"`
	AccessKeyFile string `mapstructure:"access-key-file"`
	SecretKey     string `mapstructure:"secret-key"`
	SecretKeyFile string `mapstructure:"secret-key-file"`
}

type ServeConfig struct {
	Addr          string        `mapstructure:"addr"`
	JWTSecret     string        `mapstructure:"jwt-secret"`
	JWTSecretFile string        `mapstructure:"jwt-secret-file"`
	TokenTTL      time.Duration `mapstructure:"token-ttl"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max-retries"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "aspiro is a career coaching cli that streams resume analysis, role suggestions and career reports",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"token":       "ASPIRO_TOKEN",
		"token-file":  "ASPIRO_TOKEN_FILE",
		"backend.url": "ASPIRO_BACKEND_URL",
		"serve.addr":  "ASPIRO_SERVE_ADDR",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("backend.url", "http://localhost:8080")
	viper.SetDefault("stream.min-partial-length", 100)
	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("serve.token-ttl", "24h")
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("storage.prefix", "resumes")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is aspiro.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("backend-url", "", "coaching backend url")
	rootCmd.PersistentFlags().Bool("no-retry-prompt", false, "do not offer a retry after a failed request")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend-url"))
	viper.BindPFlag("stream.no-retry-prompt", rootCmd.PersistentFlags().Lookup("no-retry-prompt"))
}

func initConfig() {
	// A missing .env file is fine, a broken one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env file: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if config == nil {
		config = &Config{}
	}
	if config.Backend == nil {
		config.Backend = &BackendConfig{}
	}
	if config.Stream == nil {
		config.Stream = &StreamConfig{}
	}
	if config.Serve == nil {
		config.Serve = &ServeConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}

	return config, nil
}
