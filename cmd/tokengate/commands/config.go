package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/tokengate/internal/app"
)

// Environment variables are namespaced with this prefix; a double underscore
// separates nesting levels (TOKENGATE_AUTH__STORAGE selects auth.storage).
const envPrefix = "TOKENGATE_"

// loadConfig layers the configuration sources in ascending precedence: TOML
// file, then environment, then whatever flags were set on the command line.
// Defaults fill what remains empty and the result is validated before any
// component is wired from it.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			return strings.ToLower(strings.ReplaceAll(key, "__", ".")), value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(flagOverrides(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("applying command-line flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// flagOverrides collects the flags the user actually set, including those
// inherited from parent commands, keyed the way the Config struct nests
// (--auth--storage becomes auth.storage, --log-level becomes log_level).
// Unset flags are skipped so they cannot shadow file or environment values.
func flagOverrides(cmd *cli.Command) map[string]any {
	overrides := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}
		if v := cmd.Value(name); v != nil {
			key := strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
			overrides[key] = v
		}
	}

	return overrides
}
