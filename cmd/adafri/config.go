package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is ~/.adafri/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
}

// ConfigDefault holds the API location and the workspace commands run against.
type ConfigDefault struct {
	BaseURL     string `toml:"base_url"`
	WorkspaceID string `toml:"workspace_id"`
}

// ConfigAuth holds the signed-in user.
type ConfigAuth struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
}

// envOverrides maps each settable key to the variable that overrides it.
var envOverrides = []struct {
	key string
	env string
}{
	{"default.base_url", "ADAFRI_BASE_URL"},
	{"default.workspace_id", "ADAFRI_WORKSPACE_ID"},
	{"auth.token", "ADAFRI_TOKEN"},
	{"auth.user_id", "ADAFRI_USER_ID"},
}

// field returns the config field addressed by a dotted key.
func (c *Config) field(key string) (*string, error) {
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return nil, fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	switch section + "." + name {
	case "default.base_url":
		return &c.Default.BaseURL, nil
	case "default.workspace_id":
		return &c.Default.WorkspaceID, nil
	case "auth.token":
		return &c.Auth.Token, nil
	case "auth.user_id":
		return &c.Auth.UserID, nil
	}
	if section != "default" && section != "auth" {
		return nil, fmt.Errorf("unknown config section %q (valid: default, auth)", section)
	}
	return nil, fmt.Errorf("unknown field %q in section [%s]", name, section)
}

func setConfigValue(cfg *Config, key, value string) error {
	f, err := cfg.field(key)
	if err != nil {
		return err
	}
	*f = value
	return nil
}

// applyEnv overrides file values with ADAFRI_* variables and reports which
// keys came from the environment.
func applyEnv(cfg *Config) map[string]string {
	from := make(map[string]string)
	for _, o := range envOverrides {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		f, _ := cfg.field(o.key)
		*f = v
		from[o.key] = o.env
	}
	return from
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".adafri", "config.toml"), nil
}

// loadConfig returns a zero Config when the file does not exist yet.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return &cfg, nil
}

func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// renderConfig prints the effective settings with the token masked and the
// environment overrides annotated.
func renderConfig(cfg *Config, from map[string]string) string {
	var b strings.Builder
	for _, o := range envOverrides {
		f, _ := cfg.field(o.key)
		val := valueOrDefault(*f, "(not set)")
		if o.key == "auth.token" && *f != "" {
			val = maskToken(*f)
		}
		line := fmt.Sprintf("%-22s %s", o.key, val)
		if env, ok := from[o.key]; ok {
			line += "  (from " + env + ")"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// ============================================================================
// config commands
// ============================================================================

var configShowRaw bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowRaw, "raw", false, "print the file as stored, unmasked")
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or change CLI settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long:  "Print the settings commands will use: the config file with ADAFRI_* environment overrides applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configShowRaw {
			path, err := configPath()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("cannot read config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		from := applyEnv(cfg)
		if jsonOutput {
			shown := *cfg
			if shown.Auth.Token != "" {
				shown.Auth.Token = maskToken(shown.Auth.Token)
			}
			return printJSON(shown)
		}
		fmt.Print(renderConfig(cfg, from))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Set a value in the config file",
	Example: "  adafri config set default.base_url https://api.example.com/api",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("%s updated\n", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}
