package recorder

import (
	"time"

	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
)

// RecordedTurn is one captured provider turn with the request it answered.
type RecordedTurn struct {
	// Metadata
	Provider   string    `json:"provider"`
	ModelID    string    `json:"model_id"`
	Session    string    `json:"session"`
	RecordedAt time.Time `json:"recorded_at"`

	// Request info (for matching)
	RequestHash string      `json:"request_hash"`
	Request     RequestInfo `json:"request"`

	Turn *chat.AssistantTurn `json:"turn"`
}

// RecordingConfig controls where turns are stored.
type RecordingConfig struct {
	Provider string
	ModelID  string
	// Session names the recording; files are prefixed with it
	Session string
	// BaseDir holds one sub-directory per provider (default: testdata)
	BaseDir string
}

func (c RecordingConfig) baseDir() string {
	if c.BaseDir == "" {
		return "testdata"
	}
	return c.BaseDir
}
