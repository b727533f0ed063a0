package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lthms/bimscan/internal/host"
	"github.com/lthms/bimscan/internal/review"
)

// MCPCmd serves the analyze operation as an MCP tool over stdio.
type MCPCmd struct{}

type findArgs struct {
	Model string `json:"model,omitempty" jsonschema:"Path to the model file; defaults to the configured model"`
	Term  string `json:"term" jsonschema:"Substring to match against element display names"`
}

type findResult struct {
	Found int             `json:"found"`
	Tree  json.RawMessage `json:"tree"`
}

// Run blocks serving requests until stdin closes or ctx is cancelled.
func (cmd *MCPCmd) Run(ctx context.Context, env *runEnv) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "bimscan",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_elements",
		Description: "Search a CAD/BIM model for elements whose name contains a term and return an indented hierarchy report with per-node counts.",
	}, env.handleFind)

	slog.Debug("starting MCP server")
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (env *runEnv) handleFind(ctx context.Context, req *mcp.CallToolRequest, args findArgs) (*mcp.CallToolResult, any, error) {
	slog.Debug("find_elements called", "model", args.Model, "term", args.Term)

	text, err := env.findReport(ctx, args)
	if err != nil {
		return nil, nil, fmt.Errorf("find_elements failed: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

// findReport runs one analysis and returns the rendered report followed by
// the JSON tree.
func (env *runEnv) findReport(ctx context.Context, args findArgs) (string, error) {
	if args.Term == "" {
		return "", fmt.Errorf("term is required")
	}
	cfg := *env.cfg
	if args.Model != "" {
		cfg.Model = args.Model
	}
	if cfg.Model == "" {
		return "", errNoModel
	}

	h, err := env.newHost(&cfg)
	if err != nil {
		return "", err
	}

	var report *review.Report
	err = review.WithDocument(ctx, h, cfg.Model, func(doc host.Document) error {
		var err error
		report, err = review.Analyze(ctx, doc, args.Term, review.Options{
			RootTitle: cfg.Search.RootTitle,
			Extract:   cfg.extractOptions(),
		})
		return err
	})
	if err != nil {
		return "", err
	}

	tree, err := json.Marshal(report.Tree)
	if err != nil {
		return "", fmt.Errorf("encode tree: %w", err)
	}
	out, err := json.Marshal(findResult{Found: report.Found, Tree: tree})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return report.Text() + "\n\n" + string(out), nil
}
