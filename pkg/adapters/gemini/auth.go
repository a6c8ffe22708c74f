package gemini

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ClientOptions selects the backend for NewClient. A non-empty Project
// means Vertex AI; otherwise the Gemini API is used with APIKey.
type ClientOptions struct {
	APIKey   string
	Project  string
	Location string
	BaseURL  string
}

// NewClient builds a genai client for the Gemini API or Vertex AI.
func NewClient(ctx context.Context, opts ClientOptions, logger interfaces.Logger) (*genai.Client, error) {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	}
	if opts.Project != "" {
		creds, err := VertexCredentials(logger)
		if err != nil {
			return nil, err
		}
		location := opts.Location
		if location == "" {
			location = "us-central1"
		}
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = opts.Project
		cfg.Location = location
		cfg.Credentials = creds
		logger.Infof("Using Vertex AI backend - project: %s, location: %s", opts.Project, location)
	} else {
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = opts.APIKey
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// VertexCredentials detects Google credentials for Vertex AI. A service
// account file named by VERTEX_SERVICE_ACCOUNT_PATH wins over Application
// Default Credentials.
func VertexCredentials(logger interfaces.Logger) (*auth.Credentials, error) {
	detect := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}
	if path := os.Getenv("VERTEX_SERVICE_ACCOUNT_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		detect.CredentialsJSON = data
		logger.Debugf("Using service account credentials from %s", path)
	}
	creds, err := credentials.DetectDefault(detect)
	if err != nil {
		return nil, fmt.Errorf("detect google credentials: %w", err)
	}
	return creds, nil
}
