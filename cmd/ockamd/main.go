// Command ockamd is a small demonstration binary for the identity,
// secure-channel, and credentials core: it can mint and inspect
// identities on disk, and it can run a self-contained end-to-end demo
// that wires a node, two identities, a secure channel, a credentials
// issuer/server pair, and an ABAC policy check together in a single
// process.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ockam/ockam/pkg/ockamlog"
)

var (
	logLevel   string
	logJSON    bool
	configPath string
)

// fileConfig is the optional YAML config file demo reads its tunables
// from, so a deployment can pin credential lifetimes and the policy
// attribute it demonstrates without recompiling.
type fileConfig struct {
	LogLevel      string        `yaml:"logLevel"`
	LogJSON       bool          `yaml:"logJSON"`
	IdentityTTL   time.Duration `yaml:"identityTTL"`
	CredentialTTL time.Duration `yaml:"credentialTTL"`
	PolicyAttr    string        `yaml:"policyAttribute"`
	PolicyValue   string        `yaml:"policyValue"`
}

var rootCmd = &cobra.Command{
	Use:   "ockamd",
	Short: "Identity, secure-channel, and credentials demonstration tool",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("reading config file %s: %w", configPath, err)
			}
			var cfg fileConfig
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
			applyFileConfig(cfg)
		}

		ockamlog.Init(ockamlog.Config{
			Level:      ockamlog.Level(logLevel),
			JSONOutput: logJSON,
			Output:     os.Stderr,
		})
		return nil
	},
}

// applyFileConfig overrides a flag's value with the config file's only
// when the flag was left at its default, so an explicit command-line
// flag always wins over the file.
func applyFileConfig(cfg fileConfig) {
	if cfg.LogLevel != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevel = cfg.LogLevel
	}
	if !rootCmd.PersistentFlags().Changed("log-json") {
		logJSON = cfg.LogJSON
	}
	if cfg.IdentityTTL > 0 && !demoCmd.Flags().Changed("identity-ttl") {
		demoIdentityTTL = cfg.IdentityTTL
	}
	if cfg.CredentialTTL > 0 && !demoCmd.Flags().Changed("credential-ttl") {
		demoCredentialTTL = cfg.CredentialTTL
	}
	if cfg.PolicyAttr != "" && !demoCmd.Flags().Changed("policy-attribute") {
		demoPolicyAttr = cfg.PolicyAttr
	}
	if cfg.PolicyValue != "" && !demoCmd.Flags().Changed("policy-value") {
		demoPolicyValue = cfg.PolicyValue
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON instead of console-formatted text")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML file overriding default flag values")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
