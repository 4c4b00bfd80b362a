package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"alertbridge/internal/connector"

	"github.com/spf13/cobra"
)

var typesDir string

func init() {
	typesCmd.Flags().StringVar(&typesDir, "dir", "", "Directory of extra YAML connector definitions")
	lintCmd.Flags().BoolVar(&lintVerbose, "verbose", false, "List every definition found")
	rootCmd.AddCommand(typesCmd, lintCmd)
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List available connector types",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry(typesDir)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tNAME\tAUTH MODES\tSCOPES\tCAPABILITIES")
		for _, def := range registry.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				def.Type, def.DisplayName, strings.Join(authModes(def), ","),
				strings.Join(scopeNames(def), ","), strings.Join(capabilities(def), ","))
		}
		return tw.Flush()
	},
}

var lintVerbose bool

var lintCmd = &cobra.Command{
	Use:   "lint <dir>",
	Short: "Check a directory of YAML connector definitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := connector.LoadDir(args[0])
		if err != nil {
			return err
		}
		// Типы из каталога не должны конфликтовать со встроенными.
		registry, err := loadRegistry("")
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(defs))
		for _, def := range defs {
			if _, exists := registry.Get(def.Type); exists || seen[def.Type] {
				return fmt.Errorf("connector %q: duplicate connector type", def.Type)
			}
			seen[def.Type] = true
			if lintVerbose {
				fmt.Fprintf(cmd.OutOrStdout(), "ok  %s (%s)\n", def.Type, strings.Join(capabilities(def), ","))
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d definition(s) valid\n", len(defs))
		return nil
	},
}

func authModes(def *connector.Definition) []string {
	if len(def.AuthModes) == 0 {
		return []string{connector.DefaultAuthMode}
	}
	out := make([]string, 0, len(def.AuthModes))
	for _, m := range def.AuthModes {
		out = append(out, m.Name)
	}
	return out
}

func scopeNames(def *connector.Definition) []string {
	out := make([]string, 0, len(def.Scopes))
	for _, s := range def.Scopes {
		name := s.Name
		if s.Mandatory {
			name += "*"
		}
		out = append(out, name)
	}
	return out
}

func capabilities(def *connector.Definition) []string {
	var out []string
	if def.CanIngest() {
		out = append(out, "alerts")
	}
	if def.CanDispatch() {
		out = append(out, "dispatch")
	}
	if len(def.Probes) > 0 {
		out = append(out, "probe")
	}
	return out
}
