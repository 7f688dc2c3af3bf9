package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"instadb/pkg/config"
	"instadb/pkg/store"
	"instadb/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage instadb configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (INSTADB_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a file",
	Long: `Write every option with its default value to a YAML file.

The file is created as '.instadb.yaml' in the current directory unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration from every source and check it.

This command checks:
  - YAML syntax
  - Value ranges and proxy addresses
  - Store driver and timezone
  - That the output and store directories can be created
  - That exiftool can be found when metadata embedding is on`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".instadb.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the file, for example to set a proxy or the output directory")
	fmt.Println("2. Run 'instadb config validate' to check it")
	fmt.Println("3. Start with 'instadb scrape <account>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (INSTADB_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in the default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	var problems, warnings []string

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Store.Enabled {
		if err := os.MkdirAll(cfg.Store.Directory, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create store directory: %v", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if cfg.Metadata.Enabled {
		if _, err := exec.LookPath(cfg.Metadata.ExifTool); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s not found, files will not be tagged", cfg.Metadata.ExifTool))
		}
	}
	if !cfg.Store.Enabled && cfg.Download.NewOnly {
		if cfg.Download.MetadataOnly {
			warnings = append(warnings, "new_only has no effect without the store or downloads")
		} else {
			warnings = append(warnings, "without the store new_only stops at the first file already downloaded")
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration problems", len(problems))
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Store: %s in %s (enabled: %t)\n", cfg.Store.Driver, cfg.Store.Directory, cfg.Store.Enabled)
	fmt.Printf("  Example store file: %s\n", store.Path(cfg, "<account>"))
	fmt.Printf("  Page delay: %s, file delay: %s\n", cfg.RateLimit.RequestDelay, cfg.RateLimit.FileDelay)
	fmt.Printf("  Timezone: %s\n", cfg.Parse.Timezone)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
