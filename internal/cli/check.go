package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"alertbridge/internal/connector"
	executor "alertbridge/internal/executor/http"

	"github.com/spf13/cobra"
)

var (
	checkDir     string
	checkProbe   bool
	checkTimeout time.Duration
)

func init() {
	checkCmd.Flags().StringVar(&checkDir, "dir", "", "Directory of extra YAML connector definitions")
	checkCmd.Flags().BoolVar(&checkProbe, "probe", false, "Probe scopes against the vendor")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 10*time.Second, "Probe timeout")
	rootCmd.AddCommand(checkCmd)
}

type checkReport struct {
	Type   string            `json:"type"`
	Mode   string            `json:"auth_mode"`
	Config map[string]string `json:"config"`
	Scopes any               `json:"scopes,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check <type> [field=value ...]",
	Short: "Validate connector credentials and optionally probe scopes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry(checkDir)
		if err != nil {
			return err
		}
		def, ok := registry.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown connector type %q", args[0])
		}

		raw := make(map[string]string, len(args)-1)
		for _, arg := range args[1:] {
			key, value, found := strings.Cut(arg, "=")
			if !found {
				return fmt.Errorf("expected field=value, got %q", arg)
			}
			raw[key] = value
		}

		cfg, err := connector.Validate(def, raw)
		if err != nil {
			return err
		}
		report := checkReport{Type: def.Type, Mode: cfg.Mode(), Config: cfg.Redacted()}

		if checkProbe {
			prober := connector.NewProber(connector.ProberOptions{
				Client:  executor.NewClient(),
				Timeout: checkTimeout,
			})
			report.Scopes = prober.Probe(cmd.Context(), cfg)
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
