package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manishiitg/mcpx-chat-go/internal/config"
	"github.com/manishiitg/mcpx-chat-go/pkg/mcprun"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// toolBackend is the mcp.run side of a session.
type toolBackend struct {
	client    *mcprun.Client
	session   *mcprun.MCPSession
	catalogue *tools.Catalogue
	invoker   *tools.Invoker
}

// newToolBackend resolves the mcp.run session and builds the catalogue.
// Nothing is contacted until the first catalogue or tool request.
func (a *app) newToolBackend() (*toolBackend, error) {
	cfg := a.cfg
	sessionID, err := mcprun.ResolveSessionID(cfg.Session)
	if err != nil {
		return nil, err
	}

	client := mcprun.NewClient(cfg.Origin, sessionID, mcprun.WithLogger(a.logger))
	session := mcprun.NewMCPSession(mcprun.SessionConfig{
		Transport: cfg.ToolTransport,
		Endpoint:  cfg.MCPEndpoint(),
		Command:   cfg.MCPXPath,
		SessionID: sessionID,
		Logger:    a.logger,
	})

	var source tools.Source = session
	if cfg.ToolSource == config.ToolSourceInstalls {
		source = client
	}
	catalogue := tools.NewCatalogue(source, tools.CatalogueOptions{
		RefreshInterval: cfg.RefreshInterval(),
		Builtins:        []tools.Builtin{mcprun.SearchTool(client)},
		Logger:          a.logger,
	})
	return &toolBackend{
		client:    client,
		session:   session,
		catalogue: catalogue,
		invoker:   tools.NewInvoker(catalogue, session, a.logger),
	}, nil
}

func (b *toolBackend) Close() error {
	return b.session.Close()
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"tools"},
		Short:   "List the tools available to the model",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.newToolBackend()
			if err != nil {
				return err
			}
			defer backend.Close()

			descriptors, err := backend.catalogue.Tools(cmd.Context())
			if err != nil {
				return err
			}
			return printTools(cmd.OutOrStdout(), descriptors)
		},
	}
}

func printTools(w io.Writer, descriptors []tools.Descriptor) error {
	for _, d := range descriptors {
		schema, err := json.MarshalIndent(d.InputSchema, "", "  ")
		if err != nil {
			return fmt.Errorf("encode schema of %s: %w", d.Name, err)
		}
		fmt.Fprintf(w, "\n%s\n%s\nInput schema:\n%s\n", d.Name, d.Description, schema)
	}
	return nil
}

func newToolCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "tool <name> [json]",
		Aliases: []string{"call"},
		Short:   "Call a tool directly, without a model",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "{}"
			if len(args) == 2 {
				input = args[1]
			}
			backend, err := a.newToolBackend()
			if err != nil {
				return err
			}
			defer backend.Close()

			return callTool(cmd.Context(), cmd.OutOrStdout(), backend.invoker, args[0], input, os.TempDir())
		},
	}
}

// callTool runs one tool and prints its content. Content of a failed
// execution is printed too before the error is returned.
func callTool(ctx context.Context, w io.Writer, inv *tools.Invoker, name, input, dir string) error {
	result, err := inv.Call(ctx, name, input)
	if err != nil {
		var te *tools.ToolError
		if errors.As(err, &te) && te.Result != nil {
			if perr := printResult(w, te.Result, dir); perr != nil {
				return errors.Join(err, perr)
			}
		}
		return err
	}
	return printResult(w, result, dir)
}

// printResult writes the text of result and saves its images to dir.
func printResult(w io.Writer, result *tools.Result, dir string) error {
	if text := result.String(); text != "" {
		fmt.Fprintln(w, text)
	}
	paths, err := saveImages(result, dir)
	for _, path := range paths {
		fmt.Fprintf(w, "[Image saved to %s]\n", path)
	}
	return err
}

// saveImages writes every image of result to its own temp file in dir.
func saveImages(result *tools.Result, dir string) ([]string, error) {
	var paths []string
	for _, img := range result.Images() {
		ext := ".bin"
		if exts, err := mime.ExtensionsByType(img.MIMEType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
		f, err := os.CreateTemp(dir, "mcpx-image-*"+ext)
		if err != nil {
			return paths, fmt.Errorf("save image: %w", err)
		}
		_, werr := f.Write(img.Data)
		cerr := f.Close()
		if werr != nil {
			return paths, fmt.Errorf("save image: %w", werr)
		}
		if cerr != nil {
			return paths, fmt.Errorf("save image: %w", cerr)
		}
		paths = append(paths, f.Name())
	}
	return paths, nil
}

func newInstallsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "installs",
		Short: "List the servlets installed in the mcp.run profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := mcprun.ResolveSessionID(a.cfg.Session)
			if err != nil {
				return err
			}
			client := mcprun.NewClient(a.cfg.Origin, sessionID, mcprun.WithLogger(a.logger))
			servlets, err := client.ListInstalls(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, s := range servlets {
				names := make([]string, 0, len(s.Tools))
				for _, t := range s.Tools {
					names = append(names, t.Name)
				}
				fmt.Fprintf(w, "%s (%s)\n  tools: %s\n", s.Name, s.Slug, strings.Join(names, ", "))
			}
			return nil
		},
	}
}

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search mcp.run for servlets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := mcprun.ResolveSessionID(a.cfg.Session)
			if err != nil {
				return err
			}
			client := mcprun.NewClient(a.cfg.Origin, sessionID, mcprun.WithLogger(a.logger))
			results, err := client.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(w, "No servlets found.")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(w, "%s (%d installs)\n  %s\n  install: %s\n", r.Slug, r.InstallationCount, r.Meta.Description, r.InstallURL())
			}
			return nil
		},
	}
}
