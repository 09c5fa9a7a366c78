package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/warren-hq/warren/internal/config"
	"github.com/warren-hq/warren/internal/printer"
)

var (
	botsConfigPath string
	botsJSON       bool
)

// botStatus is the machine-readable row for --json output
type botStatus struct {
	Service  string `json:"service"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Enabled  bool   `json:"enabled"`
	Builtin  bool   `json:"builtin"`
}

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "List configured embedded bots",
	Long: `List every bot declared in warren.yml and whether its service is
compiled into this binary. Use --json for machine-readable output.`,
	RunE: runBots,
}

func init() {
	botsCmd.Flags().StringVarP(&botsConfigPath, "config", "c", "warren.yml", "Path to warren.yml")
	botsCmd.Flags().BoolVar(&botsJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(botsCmd)
}

func runBots(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(botsConfigPath)
	if err != nil {
		return printer.Error("Failed to load configuration", err.Error(), nil)
	}

	reg, err := builtinRegistry()
	if err != nil {
		return printer.Error("Failed to build bot registry", err.Error(), nil)
	}

	statuses := make([]botStatus, 0, len(cfg.Bots))
	for _, bot := range cfg.Bots {
		statuses = append(statuses, botStatus{
			Service:  bot.Service,
			FullName: bot.FullName,
			Email:    bot.Email,
			Enabled:  bot.IsEnabled(),
			Builtin:  reg.Contains(bot.Service),
		})
	}

	if botsJSON {
		out, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return err
		}
		printer.Println(string(out))
		return nil
	}

	printer.Info("Bots configured for instance %q:\n\n", cfg.Instance)
	for _, s := range statuses {
		switch {
		case !s.Builtin:
			printer.Warning("%s (%s) - not compiled into this binary\n", s.Service, s.Email)
		case !s.Enabled:
			printer.Info("  %s (%s) - disabled\n", s.Service, s.Email)
		default:
			printer.Success("%s (%s) as %q\n", s.Service, s.Email, s.FullName)
		}
	}
	return nil
}
