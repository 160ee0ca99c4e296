package cmd

import (
	"context"
	"fmt"
	"github.com/cbusillo/discord-blue/discordblue"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
)

var (
	cfg        = discordblue.DefaultConfig()
	configFile string
	statePath  string
)

// logLevelKeys are the config keys holding a *slog.LevelVar
var logLevelKeys = []string{
	"log_level",
	"database_log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"api.log_level",
	"printnode.log_level",
	"shippo.log_level",
	"llm.log_level",
}

var rootCmd = &cobra.Command{
	Use:           "discord-blue [flags]",
	Short:         "Discord bot for asset labels, shipping and staff tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(" "),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if statePath != "" {
			cfg.StatePath = statePath
		}
		return nil
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes level names ("DEBUG", "info", ...) into
// *slog.LevelVar fields
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, err
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("Unable to load %s: %v", configFile, err)
		}
	}

	viper.SetDefault("database", discordblue.DefaultDatabase)
	viper.SetDefault("database_type", discordblue.DefaultDatabaseType)
	viper.SetDefault("database_slow_threshold", discordblue.DefaultDatabaseSlowThreshold)
	viper.SetDefault("database_log_level", discordblue.DefaultDatabaseLogLevel.String())
	viper.SetDefault("state_path", discordblue.DefaultStatePath())
	viper.SetDefault("log_level", discordblue.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", discordblue.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", discordblue.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.log_level", discordblue.DefaultDiscordLogLevel.String())
	viper.SetDefault("discord.discordgo_log_level", discordblue.DefaultDiscordgoLogLevel.String())
	viper.SetDefault("discord.gateway_intents", discordblue.DefaultDiscordGatewayIntent)
	viper.SetDefault("discord.login_attempts", discordblue.DefaultDiscordLoginAttempts)
	viper.SetDefault("discord.login_retry_interval", discordblue.DefaultDiscordLoginRetryInterval)

	// API config
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.development", false)
	viper.SetDefault("api.listen", discordblue.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.log_level", discordblue.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", discordblue.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", discordblue.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", discordblue.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", discordblue.DefaultIdleTimeout)
	viper.SetDefault("api.ssl.cert", "")
	viper.SetDefault("api.ssl.key", "")
	viper.SetDefault("api.ssl.tls_min_version", discordblue.DefaultUITLSMinVersion)

	// API: CORS config
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.allow_methods", discordblue.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.allow_headers", discordblue.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.expose_headers", discordblue.DefaultCORSExposeHeaders)
	viper.SetDefault("api.cors.allow_credentials", false)
	viper.SetDefault("api.cors.max_age", discordblue.DefaultCORSMaxAge)

	// PrintNode and Shippo
	viper.SetDefault("printnode.api_key", "")
	viper.SetDefault("printnode.url", discordblue.DefaultPrintNodeURL)
	viper.SetDefault("printnode.requests_per_second", discordblue.DefaultPrintNodeRequestsPerSecond)
	viper.SetDefault("printnode.log_level", discordblue.DefaultPrintNodeLogLevel.String())
	viper.SetDefault("shippo.api_key", "")
	viper.SetDefault("shippo.url", discordblue.DefaultShippoURL)
	viper.SetDefault("shippo.log_level", discordblue.DefaultShippoLogLevel.String())

	// LLM config
	viper.SetDefault("llm.token", "")
	viper.SetDefault("llm.base_url", "")
	viper.SetDefault("llm.base_model", discordblue.DefaultLLMBaseModel)
	viper.SetDefault("llm.data_dir", discordblue.DefaultLLMDataDir)
	viper.SetDefault("llm.context_size", discordblue.DefaultLLMContextSize)
	viper.SetDefault("llm.poll_interval", discordblue.DefaultLLMPollInterval)
	viper.SetDefault("llm.max_tokens", discordblue.DefaultLLMMaxTokens)
	viper.SetDefault("llm.log_level", discordblue.DefaultLLMLogLevel.String())

	envPrefix := os.Getenv(discordblue.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = discordblue.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// Convert values to correct types
	for _, key := range []string{
		"api.cors.allow_origins",
		"api.cors.allow_methods",
		"api.cors.allow_headers",
		"api.cors.expose_headers",
	} {
		viper.Set(key, viper.GetStringSlice(key))
	}

	for _, key := range logLevelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

// newBot loads the state document and creates a bot from the current
// config, prompting for any secrets set to read from the terminal
func newBot(cmd *cobra.Command) (*discordblue.Bot, error) {
	if err := promptSecrets(cmd); err != nil {
		return nil, err
	}
	store, err := discordblue.LoadStateStore(cfg.StatePath, nil)
	if err != nil {
		return nil, err
	}
	return discordblue.New(cfg, store)
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load config from (default .env)",
	)
	rootCmd.PersistentFlags().StringVar(
		&statePath,
		"state",
		"",
		"Path to the TOML state document",
	)
}
