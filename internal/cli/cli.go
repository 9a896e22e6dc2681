// Package cli implements the pay2run command line interface: Action
// management, paid runs with an interactive payment prompt, the local
// sandbox server, the MCP bridge and credential inspection.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pay2run/pay2run/manage"
)

const (
	cliName    = "pay2run"
	cliVersion = "0.1.0"
)

// Runner executes the CLI with injectable streams.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

func NewRunner() *Runner {
	return NewRunnerWithStreams(os.Stdout, os.Stderr, os.Stdin)
}

func NewRunnerWithStreams(stdout, stderr io.Writer, stdin io.Reader) *Runner {
	return &Runner{stdout: stdout, stderr: stderr, stdin: stdin}
}

type runtimeState struct {
	runner   *Runner
	flags    GlobalFlags
	settings Settings
	root     *cobra.Command
}

// Run executes the CLI and returns the process exit code.
func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(r.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   cliName,
		Short: "Monetize and call pay-per-use APIs",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := Load(s.flags)
			if err != nil {
				return err
			}
			s.settings = settings
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.APIKey, "api-key", "", "Creator API key")
	cmd.PersistentFlags().StringVar(&s.flags.BaseURL, "base-url", "", "Platform base URL")
	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "HTTP request timeout")

	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newRunCommand())
	cmd.AddCommand(s.newSandboxCommand())
	cmd.AddCommand(s.newMCPCommand())
	cmd.AddCommand(s.newTokenCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), cliName+" "+cliVersion)
		},
	}
}

func (s *runtimeState) httpClient() *http.Client {
	return &http.Client{Timeout: s.settings.Timeout}
}

func (s *runtimeState) manageClient() (*manage.Client, error) {
	return manage.New(s.settings.APIKey,
		manage.WithBaseURL(s.settings.BaseURL),
		manage.WithHTTPClient(s.httpClient()),
	)
}

// render writes v to stdout in the configured output mode.
func (s *runtimeState) render(v any) error {
	if s.settings.OutputMode == "plain" {
		return renderPlain(s.runner.stdout, v)
	}
	enc := json.NewEncoder(s.runner.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderPlain prints one sorted key=value line per object, or one line
// per element for slices.
func renderPlain(w io.Writer, v any) error {
	normalized, err := normalizeValue(v)
	if err != nil {
		return err
	}

	switch t := normalized.(type) {
	case []any:
		if len(t) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range t {
			if _, err := fmt.Fprintln(w, toLine(item)); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, toLine(normalized))
		return err
	}
}

func normalizeValue(v any) (any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toLine(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		buf, _ := json.Marshal(v)
		return string(buf)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch inner := m[k].(type) {
		case map[string]any, []any:
			buf, _ := json.Marshal(inner)
			parts = append(parts, fmt.Sprintf("%s=%s", k, buf))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, inner))
		}
	}
	return strings.Join(parts, " ")
}

// parseKeyValues parses repeated key=value flag values into a map.
func parseKeyValues(pairs []string, flag string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --%s value %q, want key=value", flag, pair)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}
