package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// commandSchema is a machine-readable description of a command and its
// subcommands, for agents that drive the CLI programmatically.
type commandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []flagSchema    `json:"flags,omitempty"`
	Subcommands []commandSchema `json:"subcommands,omitempty"`
}

type flagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = strings.Join(args, " ")
			}
			data, err := buildSchema(s.root, path)
			if err != nil {
				return err
			}
			return s.render(data)
		},
	}
}

// buildSchema resolves commandPath ("actions create", "run", ...) under
// root and serializes the resolved command tree.
func buildSchema(root *cobra.Command, commandPath string) (commandSchema, error) {
	cmd := root
	if strings.TrimSpace(commandPath) != "" {
		for _, part := range strings.Fields(commandPath) {
			found := false
			for _, sub := range cmd.Commands() {
				if sub.Name() == part || hasAlias(sub, part) {
					cmd = sub
					found = true
					break
				}
			}
			if !found {
				return commandSchema{}, fmt.Errorf("command not found: %s", commandPath)
			}
		}
	}
	return serializeCommand(cmd), nil
}

func serializeCommand(cmd *cobra.Command) commandSchema {
	s := commandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serializeCommand(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []flagSchema {
	items := []flagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, flagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}

func hasAlias(cmd *cobra.Command, name string) bool {
	for _, alias := range cmd.Aliases {
		if alias == name {
			return true
		}
	}
	return false
}
