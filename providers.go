package llmproviders

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	anthropicadapter "github.com/manishiitg/mcpx-chat-go/pkg/adapters/anthropic"
	bedrockadapter "github.com/manishiitg/mcpx-chat-go/pkg/adapters/bedrock"
	geminiadapter "github.com/manishiitg/mcpx-chat-go/pkg/adapters/gemini"
	openaiadapter "github.com/manishiitg/mcpx-chat-go/pkg/adapters/openai"
	"github.com/manishiitg/mcpx-chat-go/pkg/adapters/promptemu"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Provider represents the available LLM providers
type Provider string

const (
	ProviderClaude    Provider = "claude"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
	ProviderLlamafile Provider = "llamafile"
	ProviderBedrock   Provider = "bedrock"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderLlamafile, ProviderBedrock}

// ToolMode selects how tools reach the model.
type ToolMode string

const (
	// ToolModeNative uses the provider's tool calling API
	ToolModeNative ToolMode = "native"
	// ToolModePrompt describes tools in the system prompt and parses the reply
	ToolModePrompt ToolMode = "prompt"
)

// Config holds configuration for LLM initialization
type Config struct {
	Provider    Provider
	ModelID     string
	Temperature float64
	// BaseURL overrides the endpoint of OpenAI-compatible providers
	BaseURL string
	// ToolMode defaults per provider, see DefaultToolMode
	ToolMode ToolMode
	// MaxRetries for transient provider errors; negative disables retries
	MaxRetries int
	// EventEmitter receives LLM events, may be nil
	EventEmitter interfaces.EventEmitter
	TraceID      interfaces.TraceID
	// Logger for structured logging
	Logger interfaces.Logger
	// Context for client initialization (optional, uses background with timeout if not provided)
	Context context.Context
	// API keys for providers (optional, falls back to environment variables if not provided)
	APIKeys *ProviderAPIKeys
}

// ProviderAPIKeys holds credentials for different providers
type ProviderAPIKeys struct {
	Anthropic *string
	OpenAI    *string
	Gemini    *string
	Vertex    *VertexConfig
	Bedrock   *BedrockConfig
}

// VertexConfig selects the Vertex AI backend for Gemini
type VertexConfig struct {
	Project  string
	Location string
}

// BedrockConfig holds Bedrock-specific configuration
type BedrockConfig struct {
	Region string
}

// InitializeLLM creates and initializes an LLM based on the provider configuration
func InitializeLLM(config Config) (llmtypes.Model, error) {
	if config.Logger == nil {
		config.Logger = interfaces.NoopLogger{}
	}
	if _, err := ValidateProvider(string(config.Provider)); err != nil {
		return nil, err
	}
	if config.ModelID == "" {
		config.ModelID = GetDefaultModel(config.Provider)
	}

	metadata := LLMMetadata{
		ModelVersion: config.ModelID,
		CustomFields: map[string]string{
			"provider":  string(config.Provider),
			"operation": OperationLLMInitialization,
		},
	}
	emitLLMInitializationStart(config.EventEmitter, string(config.Provider), config.ModelID, config.Temperature, config.TraceID, metadata)

	var llm llmtypes.Model
	var err error
	switch config.Provider {
	case ProviderClaude:
		llm, err = initializeAnthropic(config)
	case ProviderOpenAI:
		llm, err = initializeOpenAI(config)
	case ProviderOllama, ProviderLlamafile:
		llm, err = initializeOpenAICompatible(config)
	case ProviderGemini:
		llm, err = initializeGemini(config)
	case ProviderBedrock:
		llm, err = initializeBedrock(config)
	}
	if err != nil {
		emitLLMInitializationError(config.EventEmitter, string(config.Provider), config.ModelID, OperationLLMInitialization, err, config.TraceID, metadata)
		return nil, err
	}

	toolMode := config.ToolMode
	if toolMode == "" {
		toolMode = DefaultToolMode(config.Provider)
	}
	capabilities := CapabilityTextGeneration + "," + CapabilityToolCalling
	if toolMode == ToolModePrompt {
		llm = promptemu.New(llm, config.Logger)
		capabilities = CapabilityTextGeneration + "," + CapabilityPromptToolCalling
	}

	emitLLMInitializationSuccess(config.EventEmitter, string(config.Provider), config.ModelID, capabilities, config.TraceID, LLMMetadata{
		ModelVersion: config.ModelID,
		CustomFields: map[string]string{
			"provider":  string(config.Provider),
			"status":    StatusLLMInitialized,
			"tool_mode": string(toolMode),
		},
	})
	config.Logger.Infof("Initialized %s LLM - model_id: %s, tool_mode: %s", config.Provider, config.ModelID, toolMode)

	// Wrap the LLM with provider information, events and retries
	return NewProviderAwareLLM(llm, config.Provider, config.ModelID, config), nil
}

func apiKey(configured *string, envVars ...string) string {
	if configured != nil && *configured != "" {
		return *configured
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func initContext(config Config) (context.Context, context.CancelFunc) {
	if config.Context != nil {
		return config.Context, func() {}
	}
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// initializeAnthropic creates and configures an Anthropic LLM instance
func initializeAnthropic(config Config) (llmtypes.Model, error) {
	var configured *string
	if config.APIKeys != nil {
		configured = config.APIKeys.Anthropic
	}
	key := apiKey(configured, "ANTHROPIC_API_KEY")
	if key == "" {
		return nil, llmtypes.MissingSetting("ANTHROPIC_API_KEY", "required for the claude provider")
	}

	client := anthropic.NewClient(anthropicoption.WithAPIKey(key))
	return anthropicadapter.NewAnthropicAdapter(client, config.ModelID, config.Logger), nil
}

// initializeOpenAI creates and configures an OpenAI LLM instance
func initializeOpenAI(config Config) (llmtypes.Model, error) {
	var configured *string
	if config.APIKeys != nil {
		configured = config.APIKeys.OpenAI
	}
	key := apiKey(configured, "OPENAI_API_KEY")
	if key == "" {
		return nil, llmtypes.MissingSetting("OPENAI_API_KEY", "required for the openai provider")
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openaisdk.NewClient(opts...)
	return openaiadapter.NewOpenAIAdapter(&client, config.ModelID, config.Logger), nil
}

// initializeOpenAICompatible serves Ollama and Llamafile through their
// OpenAI-compatible endpoints. Neither checks the API key.
func initializeOpenAICompatible(config Config) (llmtypes.Model, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL(config.Provider)
	}
	client := openaisdk.NewClient(
		option.WithAPIKey(string(config.Provider)),
		option.WithBaseURL(baseURL),
	)
	config.Logger.Debugf("Using %s endpoint %s", config.Provider, baseURL)
	return openaiadapter.NewCompatibleAdapter(&client, string(config.Provider), config.ModelID, config.Logger), nil
}

// initializeGemini uses the Gemini API with an API key, or Vertex AI when a
// Google Cloud project is configured.
func initializeGemini(config Config) (llmtypes.Model, error) {
	opts := geminiadapter.ClientOptions{}
	if config.APIKeys != nil && config.APIKeys.Vertex != nil {
		opts.Project = config.APIKeys.Vertex.Project
		opts.Location = config.APIKeys.Vertex.Location
	}
	if opts.Project == "" {
		opts.Project = os.Getenv("GOOGLE_CLOUD_PROJECT")
		opts.Location = os.Getenv("GOOGLE_CLOUD_LOCATION")
	}
	if opts.Project == "" {
		var configured *string
		if config.APIKeys != nil {
			configured = config.APIKeys.Gemini
		}
		opts.APIKey = apiKey(configured, "GEMINI_API_KEY", "GOOGLE_API_KEY")
		if opts.APIKey == "" {
			return nil, llmtypes.MissingSetting("GEMINI_API_KEY", "or set GOOGLE_CLOUD_PROJECT for Vertex AI")
		}
	}

	ctx, cancel := initContext(config)
	defer cancel()
	client, err := geminiadapter.NewClient(ctx, opts, config.Logger)
	if err != nil {
		return nil, &llmtypes.ConfigurationError{Field: "gemini", Reason: err.Error()}
	}
	return geminiadapter.NewGeminiAdapter(client, config.ModelID, config.Logger), nil
}

// initializeBedrock creates a Bedrock Converse client from the default AWS
// credential chain.
func initializeBedrock(config Config) (llmtypes.Model, error) {
	region := os.Getenv("AWS_REGION")
	if config.APIKeys != nil && config.APIKeys.Bedrock != nil && config.APIKeys.Bedrock.Region != "" {
		region = config.APIKeys.Bedrock.Region
	}
	if region == "" {
		region = "us-east-1"
	}

	ctx, cancel := initContext(config)
	defer cancel()
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &llmtypes.ConfigurationError{Field: "bedrock", Reason: fmt.Sprintf("load AWS config: %v", err)}
	}
	client := bedrockruntime.NewFromConfig(cfg)
	config.Logger.Debugf("Using Bedrock region %s", region)
	return bedrockadapter.NewBedrockAdapter(client, config.ModelID, config.Logger), nil
}

// GetDefaultModel returns the default model for a provider, overridable by
// <PROVIDER>_PRIMARY_MODEL
func GetDefaultModel(provider Provider) string {
	if primaryModel := os.Getenv(strings.ToUpper(string(provider)) + "_PRIMARY_MODEL"); primaryModel != "" {
		return primaryModel
	}
	switch provider {
	case ProviderClaude:
		return "claude-3-5-sonnet-20241022"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderOllama:
		return "llama3.2"
	case ProviderLlamafile:
		return "LLaMA_CPP"
	case ProviderBedrock:
		return "us.anthropic.claude-sonnet-4-20250514-v1:0"
	default:
		return ""
	}
}

// DefaultBaseURL returns the local endpoint of OpenAI-compatible providers
func DefaultBaseURL(provider Provider) string {
	switch provider {
	case ProviderOllama:
		return "http://localhost:11434/v1"
	case ProviderLlamafile:
		return "http://localhost:8080/v1"
	default:
		return ""
	}
}

// DefaultToolMode returns the tool mode used when none is configured.
// Llamafile servers have no reliable tool calling.
func DefaultToolMode(provider Provider) ToolMode {
	if provider == ProviderLlamafile {
		return ToolModePrompt
	}
	return ToolModeNative
}

// ValidateToolMode parses a tool mode; empty means the provider default.
func ValidateToolMode(mode string) (ToolMode, error) {
	switch ToolMode(mode) {
	case "", ToolModeNative, ToolModePrompt:
		return ToolMode(mode), nil
	default:
		return "", &llmtypes.ConfigurationError{Field: "tool_mode", Reason: fmt.Sprintf("unsupported tool mode %q (native, prompt)", mode)}
	}
}

// ValidateProvider validates if the provider is supported
func ValidateProvider(provider string) (Provider, error) {
	for _, p := range Providers {
		if Provider(provider) == p {
			return p, nil
		}
	}
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = string(p)
	}
	return "", &llmtypes.ConfigurationError{
		Field:  "provider",
		Reason: fmt.Sprintf("unsupported provider %q. Supported providers: %s", provider, strings.Join(names, ", ")),
	}
}
