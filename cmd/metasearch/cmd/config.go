package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/searxng/searxng-sub003/configs"
	"github.com/searxng/searxng-sub003/internal/config"
	"github.com/searxng/searxng-sub003/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		Long: `Manage the metasearch settings file.

Settings precedence (lowest to highest):
  1. Hardcoded defaults
  2. User settings (~/.config/metasearch/settings.yaml)
  3. The file given with --config
  4. Environment variables (METASEARCH_*)`,
		Example: `  # Create user settings from the template
  metasearch config init

  # Show effective settings
  metasearch config show

  # Check a settings file and its engines
  metasearch --config ./settings.yaml config validate`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the settings file",
		Long: `Create the settings file from the built-in template, at --config if
given, otherwise at ~/.config/metasearch/settings.yaml (or under
$XDG_CONFIG_HOME when set).

With --force an existing file is backed up, and settings it lacks are
filled in with defaults. Existing values are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Upgrade an existing file with new defaults")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Settings source: merged, file, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the settings file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), settingsFile())
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate settings and build every engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			reg, err := buildRegistry(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			out := output.NewAuto(cmd.OutOrStdout())
			out.Successf("Settings are valid: %d engines", len(reg.Engines()))
			return nil
		},
	}
}

// settingsFile is the file config init and show operate on.
func settingsFile() string {
	if configPath != "" {
		return configPath
	}
	return config.GetUserConfigPath()
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.NewAuto(cmd.OutOrStdout())
	path := settingsFile()

	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warning("Settings file already exists")
			out.Statusf("", "Location: %s", path)
			out.Status("", "Use --force to add new defaults (your settings are kept)")
			return nil
		}
		return runConfigUpgrade(out, path)
	}

	if err := config.WriteTemplate(path, configs.SettingsTemplate); err != nil {
		return err
	}

	out.Success("Created settings file")
	out.Statusf("", "Location: %s", path)
	out.Newline()
	out.Status("", "Next steps:")
	out.Status("", "  1. Add or enable engines in the file")
	out.Status("", "  2. Run 'metasearch config validate' to check them")
	out.Status("", "  3. Run 'metasearch search <query>'")
	return nil
}

// runConfigUpgrade backs up the settings and fills in missing defaults.
func runConfigUpgrade(out *output.Writer, path string) error {
	backupPath, err := config.BackupFile(path)
	if err != nil {
		return fmt.Errorf("failed to backup settings: %w", err)
	}

	existing, err := config.ReadFile(path)
	if err != nil {
		return err
	}
	added := existing.MergeNewDefaults()
	if err := existing.WriteYAML(path); err != nil {
		return fmt.Errorf("failed to write upgraded settings: %w", err)
	}

	out.Success("Settings upgraded")
	out.Statusf("", "Location: %s", path)
	out.Statusf("", "Backup: %s", backupPath)
	if len(added) == 0 {
		out.Status("", "Your settings are already up to date")
		return nil
	}
	out.Status("", "New options added with defaults:")
	for _, field := range added {
		out.Statusf("", "  - %s", field)
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var (
		cfg *config.Config
		err error
	)

	switch source {
	case "merged":
		cfg, err = loadSettings()
	case "file":
		cfg, err = config.ReadFile(settingsFile())
	case "defaults":
		cfg = config.NewConfig()
	default:
		return fmt.Errorf("invalid source: %s (use: merged, file, defaults)", source)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.New(cmd.OutOrStdout()).JSON(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
