package recorder

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
)

// SaveTurn writes one recorded turn to {BaseDir}/{provider}/ and returns the path.
func SaveTurn(config RecordingConfig, request RequestInfo, turn *chat.AssistantTurn) (string, error) {
	requestHash, err := ComputeRequestHash(request)
	if err != nil {
		return "", fmt.Errorf("failed to compute request hash: %w", err)
	}

	providerDir := filepath.Join(config.baseDir(), sanitizeForFilename(config.Provider))
	if err := os.MkdirAll(providerDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create provider directory: %w", err)
	}

	recorded := RecordedTurn{
		Provider:    config.Provider,
		ModelID:     config.ModelID,
		Session:     config.Session,
		RecordedAt:  time.Now(),
		RequestHash: requestHash,
		Request:     request,
		Turn:        turn,
	}
	jsonData, err := json.MarshalIndent(recorded, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal recorded turn: %w", err)
	}

	filePath := filepath.Join(providerDir, generateFilename(config.Session, config.ModelID, requestHash))
	if err := os.WriteFile(filePath, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recorded turn: %w", err)
	}
	return filePath, nil
}

// LoadTurns reads every recording under dir, indexed by request hash.
// When two recordings share a hash the most recent one wins.
func LoadTurns(dir string) (map[string]*RecordedTurn, error) {
	turns := map[string]*RecordedTurn{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read recorded turn: %w", err)
		}
		var recorded RecordedTurn
		if err := json.Unmarshal(data, &recorded); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
		if recorded.RequestHash == "" || recorded.Turn == nil {
			return nil
		}
		if prev, ok := turns[recorded.RequestHash]; ok && prev.RecordedAt.After(recorded.RecordedAt) {
			return nil
		}
		turns[recorded.RequestHash] = &recorded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// generateFilename creates {session}_{model}_{hash8}_{id}.json
func generateFilename(session, modelID, requestHash string) string {
	if session == "" {
		session = "session"
	}
	return fmt.Sprintf("%s_%s_%s_%s.json", sanitizeForFilename(session), sanitizeForFilename(modelID), requestHash[:8], uuid.NewString()[:8])
}

// sanitizeForFilename removes/replaces characters unsafe for filenames
func sanitizeForFilename(s string) string {
	result := []rune{}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result = append(result, r)
		} else if r == '.' || r == '/' || r == ':' {
			result = append(result, '_')
		}
	}
	return string(result)
}
