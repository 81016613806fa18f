package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/monitome/internal/config"
	"github.com/MrWong99/monitome/internal/credential"
	"github.com/MrWong99/monitome/internal/observe"
)

// credentialEnv maps provider names to the environment variable holding
// their API key. Providers missing here (local servers) need no key.
var credentialEnv = map[string]string{
	"elevenlabs": "ELEVENLABS_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "monitome",
		Short:             "Realtime transcription and screen activity analysis",
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
	}
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", config.DefaultPath, "path to the YAML configuration file")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: text, json or logfmt")

	root.AddCommand(c.sttCommand(), c.serveCommand(), c.devicesCommand())
	return root
}

// loadConfig reads the config file, applies the persistent flag overrides
// and installs the default logger. A missing file is only an error when
// --config was given explicitly.
func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(c.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(c.logLevel)
	}
	if c.logFormat != "" {
		cfg.Server.LogFormat = c.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	c.cfg = cfg

	slog.SetDefault(observe.NewLogger(c.stderr, cfg.Server.LogLevel.SlogLevel(), observe.LogFormat(cfg.Server.LogFormat)))
	slog.Debug("configuration loaded", "config", c.configPath, "command", cmd.Name())
	return nil
}

// resolveKey fills entry.APIKey from the environment or the dotfile when
// the config leaves it empty. The lookup error is returned unwrapped so the
// operator sees which variable to set.
func (c *cli) resolveKey(entry config.ProviderEntry) (config.ProviderEntry, error) {
	if entry.APIKey != "" {
		return entry, nil
	}
	name, ok := credentialEnv[entry.Name]
	if !ok {
		return entry, nil
	}
	key, err := credential.Lookup(name, credential.WithGetenv(c.getenv), credential.WithDotfile(c.dotfile))
	if err != nil {
		return entry, err
	}
	entry.APIKey = key
	return entry, nil
}
