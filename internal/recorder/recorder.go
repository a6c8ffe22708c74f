// Package recorder captures provider turns to JSON files and replays them,
// so chat sessions can be reproduced without calling a model.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// ErrNoRecording is returned in replay mode for a request never recorded.
var ErrNoRecording = errors.New("no recorded turn for request")

// Recorder is a chat.Provider that records the turns of an inner provider.
type Recorder struct {
	inner  chat.Provider
	config RecordingConfig
	logger interfaces.Logger

	mu    sync.Mutex
	files []string
}

// NewRecorder wraps inner. Every successful turn is written under config.BaseDir.
func NewRecorder(inner chat.Provider, config RecordingConfig, logger interfaces.Logger) *Recorder {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &Recorder{inner: inner, config: config, logger: logger}
}

// Send implements chat.Provider.
func (r *Recorder) Send(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*chat.AssistantTurn, error) {
	turn, err := r.inner.Send(ctx, messages, catalogue)
	if err != nil {
		return nil, err
	}
	path, err := SaveTurn(r.config, NewRequestInfo(messages, catalogue), turn)
	if err != nil {
		// A failed recording does not fail the chat
		r.logger.Errorf("Recording turn failed: %v", err)
		return turn, nil
	}
	r.mu.Lock()
	r.files = append(r.files, path)
	r.mu.Unlock()
	r.logger.Debugf("Recorded turn to %s", path)
	return turn, nil
}

// Files lists the recordings written so far.
func (r *Recorder) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// GetConfig returns the recording configuration
func (r *Recorder) GetConfig() RecordingConfig {
	return r.config
}

// Replayer is a chat.Provider answering from recorded turns only.
type Replayer struct {
	turns  map[string]*RecordedTurn
	logger interfaces.Logger
}

// NewReplayer loads every recording under dir.
func NewReplayer(dir string, logger interfaces.Logger) (*Replayer, error) {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	turns, err := LoadTurns(dir)
	if err != nil {
		return nil, fmt.Errorf("load recordings: %w", err)
	}
	logger.Infof("Loaded %d recorded turns from %s", len(turns), dir)
	return &Replayer{turns: turns, logger: logger}, nil
}

// Len returns the number of distinct recorded requests.
func (r *Replayer) Len() int {
	return len(r.turns)
}

// Send implements chat.Provider.
func (r *Replayer) Send(ctx context.Context, messages []llmtypes.MessageContent, catalogue []tools.Descriptor) (*chat.AssistantTurn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := ComputeRequestHash(NewRequestInfo(messages, catalogue))
	if err != nil {
		return nil, err
	}
	recorded, ok := r.turns[hash]
	if !ok {
		return nil, fmt.Errorf("%w (hash %s)", ErrNoRecording, hash[:8])
	}
	r.logger.Debugf("Replaying turn %s recorded at %s", hash[:8], recorded.RecordedAt)

	// Copy so the loop cannot alter the stored turn
	turn := *recorded.Turn
	turn.ToolCalls = append([]llmtypes.ToolCall(nil), recorded.Turn.ToolCalls...)
	return &turn, nil
}
