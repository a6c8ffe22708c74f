package mcprun

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const (
	envSessionID = "MCPX_SESSION_ID"
	envConfig    = "MCPX_CONFIG"
)

// ResolveSessionID finds the mcp.run session id. An explicit value wins,
// then MCPX_SESSION_ID, then the file named by MCPX_CONFIG, then the
// default mcpx config locations.
func ResolveSessionID(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if id := os.Getenv(envSessionID); id != "" {
		return id, nil
	}
	if path := os.Getenv(envConfig); path != "" {
		return ParseConfigFile(path)
	}
	for _, path := range defaultConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			return ParseConfigFile(path)
		}
	}
	return "", llmtypes.MissingSetting("session", "set MCPX_SESSION_ID or log in with mcpx")
}

func defaultConfigPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mcpx", "config.json"))
	}
	for _, env := range []string{"LOCALAPPDATA", "APPDATA"} {
		if dir := os.Getenv(env); dir != "" {
			paths = append(paths, filepath.Join(dir, "mcpx", "config.json"))
		}
	}
	return paths
}

// ParseConfigFile reads the session id from an mcpx config file, whose
// first authentication entry holds a "sessionId=<id>" cookie.
func ParseConfigFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &llmtypes.ConfigurationError{Field: "session", Reason: fmt.Sprintf("read mcpx config %s: %v", path, err)}
	}
	var cfg struct {
		Authentication [][]string `json:"authentication"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", &llmtypes.ConfigurationError{Field: "session", Reason: fmt.Sprintf("parse mcpx config %s: %v", path, err)}
	}
	id, err := sessionFromAuth(cfg.Authentication)
	if err != nil {
		return "", &llmtypes.ConfigurationError{Field: "session", Reason: fmt.Sprintf("mcpx config %s: %v", path, err)}
	}
	return id, nil
}

func sessionFromAuth(auth [][]string) (string, error) {
	if len(auth) == 0 || len(auth[0]) < 2 {
		return "", errors.New("no authentication entry")
	}
	_, id, ok := strings.Cut(auth[0][1], "=")
	if !ok || id == "" {
		return "", fmt.Errorf("malformed authentication value %q", auth[0][1])
	}
	return id, nil
}
