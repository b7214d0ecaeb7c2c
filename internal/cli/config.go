package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tessro/decklink/internal/config"
	dlerrors "github.com/tessro/decklink/internal/errors"
)

var configYAML bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and editing decklink configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration values, with defaults filled in.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long:  `Open the configuration file in your default editor.`,
	RunE:  runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long:  `Create a new configuration file with default values.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(getConfigPath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Supported keys:
  network.interface          Interface to join the network on
  network.device_number      Player number to announce as (1-15)
  network.device_name        Name to announce
  network.announce_interval  Announcement interval in ms
  network.device_timeout     Device expiry in ms
  finder.passive             Never query players (true/false)
  finder.queue_size          Pending updates per finder
  finder.art_cache_size      Artwork kept in memory
  finder.fetch_timeout       Player query timeout in seconds
  archive.auto_attach_dir    Directory of archives to match to media
  tui.theme                  auto, dark or light
  tui.refresh_interval       Monitor refresh in ms
  log.level                  debug, info, warn or error
  log.file                   Log file path
  log.format                 text or json

Examples:
  decklink config set network.interface en0
  decklink config set finder.passive true`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var intKeys = map[string]bool{
	"network.device_number":     true,
	"network.announce_interval": true,
	"network.device_timeout":    true,
	"finder.queue_size":         true,
	"finder.art_cache_size":     true,
	"finder.fetch_timeout":      true,
	"tui.refresh_interval":      true,
}

var boolKeys = map[string]bool{
	"finder.passive": true,
}

var stringKeys = map[string]bool{
	"network.interface":       true,
	"network.device_name":     true,
	"archive.auto_attach_dir": true,
	"tui.theme":               true,
	"log.level":               true,
	"log.file":                true,
	"log.format":              true,
}

func init() {
	configShowCmd.Flags().BoolVar(&configYAML, "yaml", false, "output as YAML")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	switch {
	case JSONOutput():
		return writeJSON(os.Stdout, cfg)
	case configYAML:
		return writeYAML(os.Stdout, cfg)
	}

	encoder := toml.NewEncoder(os.Stdout)
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}

func notFound(path string) error {
	return dlerrors.WithSuggestion(
		fmt.Errorf("%w: %s", dlerrors.ErrConfigNotFound, path),
		"Run 'decklink config init' first",
	)
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return notFound(configPath)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"nano", "vim", "vi", "notepad"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set EDITOR environment variable")
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	if err := config.Save(configPath, config.Default()); err != nil {
		return err
	}

	if JSONOutput() {
		return writeJSON(os.Stdout, map[string]string{
			"status": "created",
			"path":   configPath,
		})
	}
	fmt.Printf("Created config file: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set network.interface if you have more than one network")
	fmt.Println("  2. Run 'decklink devices' to check the players can be heard")
	return nil
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.Path()
}

// typedValue converts a raw value to the type the key is stored as.
func typedValue(key, value string) (any, error) {
	switch {
	case intKeys[key]:
		i, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("value must be an integer for %s", key)
		}
		return i, nil
	case boolKeys[key]:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("value must be true or false for %s", key)
		}
		return b, nil
	case stringKeys[key]:
		return value, nil
	}
	return nil, dlerrors.WithSuggestion(
		fmt.Errorf("%w: unknown key %q", dlerrors.ErrInvalidConfig, key),
		"Run 'decklink config set --help' to list supported keys",
	)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return notFound(configPath)
	}

	typed, err := typedValue(key, value)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	var rawConfig map[string]any
	if _, err := toml.Decode(string(data), &rawConfig); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if rawConfig == nil {
		rawConfig = make(map[string]any)
	}

	section, field, _ := strings.Cut(key, ".")
	sectionMap, ok := rawConfig[section].(map[string]any)
	if !ok {
		sectionMap = make(map[string]any)
		rawConfig[section] = sectionMap
	}
	sectionMap[field] = typed

	// Validate the result before writing it back.
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(rawConfig); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	var check config.Config
	if _, err := toml.Decode(sb.String(), &check); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	check.ApplyDefaults()
	if err := check.Validate(); err != nil {
		return fmt.Errorf("%w: %v", dlerrors.ErrInvalidConfig, err)
	}

	if err := config.Save(configPath, rawConfig); err != nil {
		return err
	}

	if JSONOutput() {
		return writeJSON(os.Stdout, map[string]string{
			"status": "updated",
			"key":    key,
			"value":  value,
		})
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

