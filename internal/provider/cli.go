package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CLIProvider implements Provider by invoking an agentic CLI tool once per
// request. The tool is expected to print a JSON document on stdout; images
// are passed by path, text by a single prompt argument.
type CLIProvider struct {
	command string
	args    []string
	model   string
	workDir string
	procMgr *ProcessManager
}

// cliResponse is the JSON structure expected on the tool's stdout.
// Example: {"result": {"content": [{"type": "text", "text": "answer"}]}}
type cliResponse struct {
	Result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"result"`
}

// NewCLIProvider creates a subprocess-backed provider adapter.
func NewCLIProvider(cfg Config, pm *ProcessManager) (*CLIProvider, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("cli provider requires a command")
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	return &CLIProvider{
		command: cfg.Command,
		args:    cfg.Args,
		model:   cfg.Params.Model,
		workDir: workDir,
		procMgr: pm,
	}, nil
}

// Send runs one subprocess invocation and returns the extracted answer text.
func (p *CLIProvider) Send(ctx context.Context, req Request) (string, error) {
	cmd := newCommand(ctx, p.command, p.buildArgs(req)...)
	cmd.Dir = p.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, p.procMgr)
	if err != nil {
		return "", fmt.Errorf("%s invocation failed: %w", p.command, err)
	}

	answer, err := parseCLIResponse(stdout)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s response: %w (stderr: %s)", p.command, err, string(stderr))
	}

	return answer, nil
}

// Close is a no-op: the adapter uses one subprocess per invocation and holds
// no persistent process.
func (p *CLIProvider) Close() error {
	return nil
}

// buildArgs constructs the command-line arguments for one request.
func (p *CLIProvider) buildArgs(req Request) []string {
	args := append([]string(nil), p.args...)
	args = append(args, "-p", req.Text(), "--output-format", "json")

	for _, path := range req.ImagePaths() {
		args = append(args, "--image", path)
	}

	if p.model != "" {
		args = append(args, "--model", p.model)
	}

	return args
}

// parseCLIResponse extracts the concatenated text content from the tool's
// JSON output.
func parseCLIResponse(data []byte) (string, error) {
	var cr cliResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	var content strings.Builder
	for _, item := range cr.Result.Content {
		if item.Type == "text" {
			content.WriteString(item.Text)
		}
	}

	return strings.TrimSpace(content.String()), nil
}
