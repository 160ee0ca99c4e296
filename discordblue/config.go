//nolint:lll // struct tags can't be split
package discordblue

import (
	"crypto/tls"
	"github.com/bwmarrin/discordgo"
	"github.com/gin-contrib/cors"
	openai "github.com/sashabaranov/go-openai"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	EnvvarSetEnvPrefix     = "BLUE_ENV_PREFIX"
	DefaultEnvPrefix       = "BLUE"
	DefaultDatabaseType    = "sqlite"
	DefaultDatabase        = "discord-blue.sqlite3"
	DefaultLogLevel        = slog.LevelInfo
	DefaultStartupTimeout  = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second

	// SecretFromTerminal is the placeholder value for secrets which should
	// be prompted for interactively rather than read from the environment
	SecretFromTerminal = "from_terminal"

	DefaultReadTimeout       = 5 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 30 * time.Second

	DefaultDiscordLogLevel           = slog.LevelInfo
	DefaultDiscordgoLogLevel         = slog.LevelWarn
	DefaultDiscordGatewayIntent      = discordgo.IntentsAll
	DefaultDiscordLoginAttempts      = 120
	DefaultDiscordLoginRetryInterval = 5 * time.Second
	discordMaxMessageLength          = 2000
	discordMaxChoices                = 25

	DefaultAPIListen       = "127.0.0.1:5000"
	DefaultUITLSMinVersion = tls.VersionTLS12
	DefaultAPILogLevel     = slog.LevelInfo
	defaultListenNetwork   = "tcp"

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelWarn

	DefaultPrintNodeURL               = "https://api.printnode.com"
	DefaultPrintNodeRequestsPerSecond = 5
	DefaultPrintNodeLogLevel          = slog.LevelInfo

	DefaultShippoURL      = "https://api.goshippo.com"
	DefaultShippoLogLevel = slog.LevelInfo

	DefaultLLMBaseModel    = openai.GPT4oMini20240718
	DefaultLLMLogLevel     = slog.LevelInfo
	DefaultLLMContextSize  = 5
	DefaultLLMPollInterval = 30 * time.Second
	DefaultLLMDataDir      = "training_data"
	DefaultLLMMaxTokens    = 100
)

var (
	DefaultCORSAllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodDelete,
		http.MethodOptions,
		http.MethodHead,
	}
	DefaultCORSAllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Accept",
		"Authorization",
		xRequestIDHeader,
	}
	DefaultCORSExposeHeaders = []string{
		"Content-Type",
		"Content-Length",
		"Content-Disposition",
		xRequestIDHeader,
	}
	DefaultCORSMaxAge = 12 * time.Hour
)

type Config struct {
	// Database connection string, or SQLite file path
	Database string `yaml:"database" mapstructure:"database" json:"database" binding:"required"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// StatePath is the location of the TOML state document
	StatePath string `yaml:"state_path" mapstructure:"state_path" json:"state_path" binding:"required"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout limits how long the ready handler may take once the
	// gateway is open. Login retries and time spent waiting on the
	// guild/channel selector don't count against it.
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout" binding:"min=1s"`

	// ShutdownTimeout is the time to allow for a graceful shutdown. After this
	// elapses, the bot will force close all connections and exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	Discord   *DiscordConfig   `yaml:"discord" mapstructure:"discord" json:"discord" binding:"required"`
	API       *APIConfig       `yaml:"api" mapstructure:"api" json:"api" binding:"required"`
	PrintNode *PrintNodeConfig `yaml:"printnode" mapstructure:"printnode" json:"printnode" binding:"required"`
	Shippo    *ShippoConfig    `yaml:"shippo" mapstructure:"shippo" json:"shippo" binding:"required"`
	LLM       *LLMConfig       `yaml:"llm" mapstructure:"llm" json:"llm" binding:"required"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// Discord gateway intents. The bot reads message history and member
	// roles, so the privileged intents must be enabled in the dev portal.
	GatewayIntents discordgo.Intent `yaml:"gateway_intents" mapstructure:"gateway_intents" json:"gateway_intents"`

	// LoginAttempts is the number of times to try opening the gateway when
	// discord rejects the requested intents
	LoginAttempts int `yaml:"login_attempts" mapstructure:"login_attempts" json:"login_attempts" binding:"min=1"`

	// LoginRetryInterval is the time to wait between login attempts
	LoginRetryInterval time.Duration `yaml:"login_retry_interval" mapstructure:"login_retry_interval" json:"login_retry_interval"`

	httpClient *http.Client
}

// APIConfig configures the backend API server
type APIConfig struct {
	// Enabled starts the API alongside the bot
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`

	// The address and port on which the server should listen (e.g., "127.0.0.1:5000").
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen" binding:"required_if=Enabled true"`

	// The network type for listening (e.g., "tcp", "tcp4", "tcp6", "unix").
	ListenNetwork string `yaml:"listen_network" mapstructure:"listen_network" json:"listen_network" binding:"required_if=Enabled true,omitempty,oneof=tcp tcp4 tcp6 unix"`

	// Configuration for SSL/TLS. When no cert is set, the API serves plain HTTP.
	SSL SSLConfig `yaml:"ssl" mapstructure:"ssl" json:"ssl"`

	// The logging level for the API server.
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Cross-origin configuration
	CORS CORSConfig `yaml:"cors" mapstructure:"cors" json:"cors"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	// Development enables pprof endpoints and permissive CORS
	Development bool `yaml:"development" mapstructure:"development" json:"development"`
}

// SSLConfig specifies cert paths and the TLS version to use
type SSLConfig struct {
	Cert          string `yaml:"cert" mapstructure:"cert" json:"cert"`
	Key           string `yaml:"key" mapstructure:"key" json:"key" binding:"required_with=Cert"`
	TLSMinVersion uint16 `yaml:"tls_min_version" mapstructure:"tls_min_version" json:"tls_min_version"`
}

// CORSConfig specifies cross-origin resource sharing settings
type CORSConfig struct {
	AllowOrigins     []string      `yaml:"allow_origins" mapstructure:"allow_origins" json:"allow_origins"`
	AllowMethods     []string      `yaml:"allow_methods" mapstructure:"allow_methods" json:"allow_methods"`
	AllowHeaders     []string      `yaml:"allow_headers" mapstructure:"allow_headers" json:"allow_headers"`
	ExposeHeaders    []string      `yaml:"expose_headers" mapstructure:"expose_headers" json:"expose_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials" json:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age" json:"max_age"`
}

func (c CORSConfig) GINConfig() cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		MaxAge:           c.MaxAge,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
	}
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:  []string{},
		AllowMethods:  append([]string(nil), DefaultCORSAllowMethods...),
		AllowHeaders:  append([]string(nil), DefaultCORSAllowHeaders...),
		ExposeHeaders: append([]string(nil), DefaultCORSExposeHeaders...),
		MaxAge:        DefaultCORSMaxAge,
	}
}

// PrintNodeConfig configures the PrintNode cloud printing client
type PrintNodeConfig struct {
	APIKey            string         `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`
	URL               string         `yaml:"url" mapstructure:"url" json:"url" binding:"required,url"`
	RequestsPerSecond float64        `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second" binding:"gt=0"`
	LogLevel          *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// ShippoConfig configures the Shippo shipping label client
type ShippoConfig struct {
	APIKey   string         `yaml:"api_key" mapstructure:"api_key" json:"api_key" log:"[redacted]"`
	URL      string         `yaml:"url" mapstructure:"url" json:"url" binding:"required,url"`
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// LLMConfig configures dataset collection, fine-tuning and generation
type LLMConfig struct {
	// OpenAI API token
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// BaseURL overrides the OpenAI API URL (for compatible servers)
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url" binding:"omitempty,url"`

	// BaseModel is the model fine-tuning jobs start from
	BaseModel string `yaml:"base_model" mapstructure:"base_model" json:"base_model" binding:"required"`

	// DataDir holds the collected *_training_data.json(l) files
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" json:"data_dir" binding:"required"`

	// ContextSize is the number of preceding messages kept with each
	// collected message
	ContextSize int `yaml:"context_size" mapstructure:"context_size" json:"context_size" binding:"min=0"`

	// PollInterval is the time between fine-tuning job status checks
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval" json:"poll_interval" binding:"min=1s"`

	// MaxTokens caps generated replies
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" json:"max_tokens" binding:"min=1"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

// DefaultStatePath returns ~/.config/discord-blue/config.toml, falling
// back to the working directory when the home directory is unknown.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "discord-blue", "config.toml")
}

// DefaultConfig returns a Config with all default settings populated
func DefaultConfig() *Config {
	mainLogLevel := &slog.LevelVar{}
	discordLogLevel := &slog.LevelVar{}
	discordgoLogLevel := &slog.LevelVar{}
	dbLogLevel := &slog.LevelVar{}
	apiLogLevel := &slog.LevelVar{}
	printNodeLogLevel := &slog.LevelVar{}
	shippoLogLevel := &slog.LevelVar{}
	llmLogLevel := &slog.LevelVar{}

	mainLogLevel.Set(DefaultLogLevel)
	discordLogLevel.Set(DefaultDiscordLogLevel)
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)
	dbLogLevel.Set(DefaultDatabaseLogLevel)
	apiLogLevel.Set(DefaultAPILogLevel)
	printNodeLogLevel.Set(DefaultPrintNodeLogLevel)
	shippoLogLevel.Set(DefaultShippoLogLevel)
	llmLogLevel.Set(DefaultLLMLogLevel)

	return &Config{
		DatabaseType:          DefaultDatabaseType,
		Database:              DefaultDatabase,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		StatePath:             DefaultStatePath(),
		LogLevel:              mainLogLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			GatewayIntents:     DefaultDiscordGatewayIntent,
			LogLevel:           discordLogLevel,
			DiscordGoLogLevel:  discordgoLogLevel,
			LoginAttempts:      DefaultDiscordLoginAttempts,
			LoginRetryInterval: DefaultDiscordLoginRetryInterval,
		},
		API: &APIConfig{
			Listen:        DefaultAPIListen,
			ListenNetwork: defaultListenNetwork,
			SSL: SSLConfig{
				TLSMinVersion: DefaultUITLSMinVersion,
			},
			LogLevel:          apiLogLevel,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			CORS:              DefaultCORSConfig(),
		},
		PrintNode: &PrintNodeConfig{
			URL:               DefaultPrintNodeURL,
			RequestsPerSecond: DefaultPrintNodeRequestsPerSecond,
			LogLevel:          printNodeLogLevel,
		},
		Shippo: &ShippoConfig{
			URL:      DefaultShippoURL,
			LogLevel: shippoLogLevel,
		},
		LLM: &LLMConfig{
			BaseModel:    DefaultLLMBaseModel,
			DataDir:      DefaultLLMDataDir,
			ContextSize:  DefaultLLMContextSize,
			PollInterval: DefaultLLMPollInterval,
			MaxTokens:    DefaultLLMMaxTokens,
			LogLevel:     llmLogLevel,
		},
	}
}
