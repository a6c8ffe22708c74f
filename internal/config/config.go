// Package config loads mcpx-chat settings from flags, MCPX_* environment
// variables, .env files and an optional config file, in that precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	llmproviders "github.com/manishiitg/mcpx-chat-go"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
	"github.com/manishiitg/mcpx-chat-go/pkg/mcprun"
)

// EnvPrefix prefixes every setting read from the environment.
const EnvPrefix = "MCPX"

// Tool catalogue sources.
const (
	ToolSourceMCP      = "mcp"
	ToolSourceInstalls = "installs"
)

// Config is the resolved configuration of one CLI invocation.
type Config struct {
	Provider      string
	Model         string
	URL           string
	System        string
	ToolMode      string
	MaxIterations int
	Parallel      bool
	Stream        bool
	MaxRetries    int

	Origin        string
	Session       string
	MCPURL        string
	ToolTransport string
	ToolSource    string
	MCPXPath      string
	ToolRefresh   time.Duration

	LogFile  string
	LogLevel string
	Debug    bool

	RecordDir string
	Replay    string

	AnthropicAPIKey     string
	OpenAIAPIKey        string
	GeminiAPIKey        string
	GoogleCloudProject  string
	GoogleCloudLocation string
	AWSRegion           string
}

// credentialEnv maps credential keys to the provider SDKs' own variables.
var credentialEnv = map[string][]string{
	"anthropic_api_key":     {"ANTHROPIC_API_KEY"},
	"openai_api_key":        {"OPENAI_API_KEY"},
	"gemini_api_key":        {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"google_cloud_project":  {"GOOGLE_CLOUD_PROJECT"},
	"google_cloud_location": {"GOOGLE_CLOUD_LOCATION"},
	"aws_region":            {"AWS_REGION", "AWS_DEFAULT_REGION"},
}

// LoadDotEnv loads .env and ../.env. Missing files are ignored and variables
// already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
}

// New returns a viper instance with defaults and environment bindings.
// configFile may be empty, in which case mcpx-chat.yaml is looked up in the
// working directory and ~/.config/mcpx.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("session", "MCPX_SESSION_ID", "MCPX_SESSION")
	for key, envs := range credentialEnv {
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("mcpx-chat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "mcpx"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, &llmtypes.ConfigurationError{Field: "config", Reason: err.Error()}
		}
	}
	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", string(llmproviders.ProviderClaude))
	v.SetDefault("system", chat.DefaultSystemPrompt)
	v.SetDefault("max_iterations", chat.DefaultMaxIterations)
	v.SetDefault("parallel", false)
	v.SetDefault("stream", false)
	v.SetDefault("max_retries", 2)
	v.SetDefault("origin", mcprun.DefaultBaseURL)
	v.SetDefault("tool_transport", mcprun.TransportHTTP)
	v.SetDefault("tool_source", ToolSourceMCP)
	v.SetDefault("mcpx_path", "mcpx")
	v.SetDefault("tool_refresh", time.Minute)
	v.SetDefault("log_level", "info")
}

// BindFlags binds every flag in flags whose name, with dashes turned into
// underscores, is a config key.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

// Load reads the configuration out of v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Provider:      strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Model:         v.GetString("model"),
		URL:           v.GetString("url"),
		System:        v.GetString("system"),
		ToolMode:      v.GetString("tool_mode"),
		MaxIterations: v.GetInt("max_iterations"),
		Parallel:      v.GetBool("parallel"),
		Stream:        v.GetBool("stream"),
		MaxRetries:    v.GetInt("max_retries"),

		Origin:        strings.TrimRight(v.GetString("origin"), "/"),
		Session:       v.GetString("session"),
		MCPURL:        v.GetString("mcp_url"),
		ToolTransport: v.GetString("tool_transport"),
		ToolSource:    v.GetString("tool_source"),
		MCPXPath:      v.GetString("mcpx_path"),
		ToolRefresh:   v.GetDuration("tool_refresh"),

		LogFile:  v.GetString("log_file"),
		LogLevel: v.GetString("log_level"),
		Debug:    v.GetBool("debug"),

		RecordDir: v.GetString("record_dir"),
		Replay:    v.GetString("replay"),

		AnthropicAPIKey:     v.GetString("anthropic_api_key"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		GeminiAPIKey:        v.GetString("gemini_api_key"),
		GoogleCloudProject:  v.GetString("google_cloud_project"),
		GoogleCloudLocation: v.GetString("google_cloud_location"),
		AWSRegion:           v.GetString("aws_region"),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges. Credentials are checked
// later by the provider factory, which knows which ones it needs.
func (c *Config) Validate() error {
	if _, err := llmproviders.ValidateProvider(c.Provider); err != nil {
		return err
	}
	if _, err := llmproviders.ValidateToolMode(c.ToolMode); err != nil {
		return err
	}
	if c.MaxIterations < 0 {
		return &llmtypes.ConfigurationError{Field: "max_iterations", Reason: "must not be negative"}
	}
	switch c.ToolTransport {
	case mcprun.TransportHTTP, mcprun.TransportStdio:
	default:
		return &llmtypes.ConfigurationError{Field: "tool_transport", Reason: fmt.Sprintf("unsupported transport %q (http, stdio)", c.ToolTransport)}
	}
	switch c.ToolSource {
	case ToolSourceMCP, ToolSourceInstalls:
	default:
		return &llmtypes.ConfigurationError{Field: "tool_source", Reason: fmt.Sprintf("unsupported tool source %q (mcp, installs)", c.ToolSource)}
	}
	if _, err := llmproviders.ParseLevel(c.LogLevel); err != nil {
		return &llmtypes.ConfigurationError{Field: "log_level", Reason: err.Error()}
	}
	if c.Replay != "" && c.RecordDir != "" {
		return &llmtypes.ConfigurationError{Field: "replay", Reason: "cannot record and replay at the same time"}
	}
	return nil
}

// RefreshInterval converts tool_refresh for the catalogue, where zero means
// the snapshot never expires.
func (c *Config) RefreshInterval() time.Duration {
	if c.ToolRefresh <= 0 {
		return -1
	}
	return c.ToolRefresh
}

// MCPEndpoint returns the MCP URL, defaulting to the origin's MCP path.
func (c *Config) MCPEndpoint() string {
	if c.MCPURL != "" {
		return c.MCPURL
	}
	return mcprun.Endpoints{Base: c.Origin}.MCP()
}

// LLMConfig builds the provider factory configuration.
func (c *Config) LLMConfig() llmproviders.Config {
	keys := &llmproviders.ProviderAPIKeys{}
	if c.AnthropicAPIKey != "" {
		keys.Anthropic = &c.AnthropicAPIKey
	}
	if c.OpenAIAPIKey != "" {
		keys.OpenAI = &c.OpenAIAPIKey
	}
	if c.GeminiAPIKey != "" {
		keys.Gemini = &c.GeminiAPIKey
	}
	if c.GoogleCloudProject != "" {
		keys.Vertex = &llmproviders.VertexConfig{Project: c.GoogleCloudProject, Location: c.GoogleCloudLocation}
	}
	if c.AWSRegion != "" {
		keys.Bedrock = &llmproviders.BedrockConfig{Region: c.AWSRegion}
	}
	return llmproviders.Config{
		Provider:   llmproviders.Provider(c.Provider),
		ModelID:    c.Model,
		BaseURL:    c.URL,
		ToolMode:   llmproviders.ToolMode(c.ToolMode),
		MaxRetries: c.MaxRetries,
		APIKeys:    keys,
	}
}
