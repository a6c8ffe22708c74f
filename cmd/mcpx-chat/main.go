package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	llmproviders "github.com/manishiitg/mcpx-chat-go"
	"github.com/manishiitg/mcpx-chat-go/internal/config"
)

// app holds what every subcommand shares once flags are parsed.
type app struct {
	configFile string
	cfg        *config.Config
	logger     *llmproviders.DefaultLogger
}

func main() {
	if err := newRootCommand(&app{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mcpx-chat",
		Short:         "Chat with LLMs using tools installed on mcp.run",
		Long:          "Interactive chat with Claude, OpenAI, Gemini, Ollama, Llamafile or Bedrock models that can call the tools installed in your mcp.run profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default mcpx-chat.yaml in . or ~/.config/mcpx)")
	flags.String("origin", "", "mcp.run base URL")
	flags.String("session", "", "mcp.run session id (default from MCPX_SESSION_ID or the mcpx config)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newChatCommand(a),
		newListCommand(a),
		newToolCommand(a),
		newInstallsCommand(a),
		newSearchCommand(a),
	)
	return rootCmd
}

// setup resolves configuration and logging for the command about to run.
func (a *app) setup(cmd *cobra.Command) error {
	config.LoadDotEnv()

	v, err := config.New(a.configFile)
	if err != nil {
		return err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	level, err := llmproviders.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := llmproviders.NewFileLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}

	a.cfg, a.logger = cfg, logger
	// Libraries logging through log/slog land in the same file
	slog.SetDefault(logger.Slog())
	logger.Debugf("Configuration loaded - provider: %s, tool source: %s, transport: %s", cfg.Provider, cfg.ToolSource, cfg.ToolTransport)
	return nil
}
