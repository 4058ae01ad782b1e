package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/meetiq/config"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
)

// ConfigCommandDeps holds the dependencies for config commands.
type ConfigCommandDeps struct {
	LoadConfig func() (*config.CLIConfig, error)
	SaveConfig func(*config.CLIConfig) error
	ConfigPath func() (string, error)
}

// DefaultConfigDeps returns the default dependencies for production use.
func DefaultConfigDeps() *ConfigCommandDeps {
	return &ConfigCommandDeps{
		LoadConfig: config.LoadConfig,
		SaveConfig: config.SaveConfig,
		ConfigPath: config.ConfigPath,
	}
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(deps *ConfigCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultConfigDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long: `View and modify ~/.meetiq/config.yaml.

MEETIQ_* environment variables override the file; "config show" prints the
merged result.`,
	}
	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigInitCommand(deps))
	cmd.AddCommand(newConfigSetCommand(deps))
	return cmd
}

// configView is the printable form of a CLIConfig. Passwords are masked.
type configView struct {
	Path           string `json:"path" yaml:"path"`
	OutputFormat   string `json:"output_format" yaml:"output_format"`
	LogFormat      string `json:"log_format" yaml:"log_format"`
	Debug          bool   `json:"debug" yaml:"debug"`
	ProfilesFile   string `json:"profiles_file" yaml:"profiles_file"`
	TickInterval   string `json:"tick_interval" yaml:"tick_interval"`
	Classification struct {
		Enabled         bool   `json:"enabled" yaml:"enabled"`
		MinElapsed      string `json:"min_elapsed" yaml:"min_elapsed"`
		MinFragments    int    `json:"min_fragments" yaml:"min_fragments"`
		SwitchThreshold int    `json:"switch_threshold" yaml:"switch_threshold"`
		Timeout         string `json:"timeout" yaml:"timeout"`
	} `json:"classification" yaml:"classification"`
	Semantic struct {
		Address  string `json:"address" yaml:"address"`
		Method   string `json:"method" yaml:"method"`
		Insecure bool   `json:"insecure" yaml:"insecure"`
		Timeout  string `json:"timeout" yaml:"timeout"`
	} `json:"semantic" yaml:"semantic"`
	Redis    config.RedisConfig    `json:"redis" yaml:"redis"`
	Postgres config.PostgresConfig `json:"postgres" yaml:"postgres"`
}

func newConfigView(path string, c *config.CLIConfig) *configView {
	v := &configView{
		Path:         path,
		OutputFormat: c.OutputFormat.String(),
		LogFormat:    valueOr(c.LogFormat, "(auto)"),
		Debug:        c.Debug,
		ProfilesFile: valueOr(c.ProfilesFile, "(built-in)"),
		TickInterval: c.TickInterval.String(),
		Redis:        c.Redis,
		Postgres:     c.Postgres,
	}
	v.Classification.Enabled = c.Classification.Enabled
	v.Classification.MinElapsed = c.Classification.MinElapsed.String()
	v.Classification.MinFragments = c.Classification.MinFragments
	v.Classification.SwitchThreshold = c.Classification.SwitchThreshold
	v.Classification.Timeout = c.Classification.Timeout.String()
	v.Semantic.Address = valueOr(c.Semantic.Address, "(disabled)")
	v.Semantic.Method = c.Semantic.Method
	v.Semantic.Insecure = c.Semantic.Insecure
	v.Semantic.Timeout = c.Semantic.Timeout.String()
	if v.Redis.Password != "" {
		v.Redis.Password = "********"
	}
	if v.Postgres.Password != "" {
		v.Postgres.Password = "********"
	}
	return v
}

func newConfigShowCommand(deps *ConfigCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			format, err := resolveFormat(c, output)
			if err != nil {
				return err
			}
			path, _ := deps.ConfigPath()
			view := newConfigView(path, c)
			if format != config.OutputFormatText {
				return writeStructured(cmd.OutOrStdout(), format, view)
			}
			printConfigView(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: text, json, yaml")
	return cmd
}

func printConfigView(w io.Writer, v *configView) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Config file:\t%s\n", v.Path)
	fmt.Fprintf(tw, "Output format:\t%s\n", v.OutputFormat)
	fmt.Fprintf(tw, "Log format:\t%s\n", v.LogFormat)
	fmt.Fprintf(tw, "Debug:\t%t\n", v.Debug)
	fmt.Fprintf(tw, "Profiles file:\t%s\n", v.ProfilesFile)
	fmt.Fprintf(tw, "Tick interval:\t%s\n", v.TickInterval)
	fmt.Fprintf(tw, "Classification:\tenabled=%t min_elapsed=%s min_fragments=%d switch_threshold=%d timeout=%s\n",
		v.Classification.Enabled, v.Classification.MinElapsed, v.Classification.MinFragments,
		v.Classification.SwitchThreshold, v.Classification.Timeout)
	fmt.Fprintf(tw, "Semantic:\t%s\n", v.Semantic.Address)
	fmt.Fprintf(tw, "Redis:\t%s db=%d prefix=%s\n", v.Redis.Address, v.Redis.DB, v.Redis.StreamPrefix)
	fmt.Fprintf(tw, "Postgres:\t%s@%s:%d/%s\n", v.Postgres.User, v.Postgres.Host, v.Postgres.Port, v.Postgres.Database)
	tw.Flush()
}

func newConfigInitCommand(deps *ConfigCommandDeps) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := deps.ConfigPath()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}
			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintf(out, "Configuration file already exists: %s\n", path)
				fmt.Fprintln(out, "Use --force to overwrite it, or 'meetiq config show' to view it.")
				return nil
			}
			if err := deps.SaveConfig(config.DefaultConfig()); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(out, "Created configuration file: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newConfigSetCommand(deps *ConfigCommandDeps) *cobra.Command {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set one value in the config file and validate the result.

Keys:
  ` + strings.Join(keys, "\n  ") + `

Examples:
  meetiq config set output_format json
  meetiq config set tick_interval 30s
  meetiq config set semantic.address classifier.internal:443`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: keys,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			c, err := deps.LoadConfig()
			if err != nil {
				c = config.DefaultConfig()
			}
			if err := setConfigValue(c, key, value); err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			if err := deps.SaveConfig(c); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

type configSetter func(c *config.CLIConfig, value string) error

func stringSetter(field func(*config.CLIConfig) *string) configSetter {
	return func(c *config.CLIConfig, v string) error {
		*field(c) = v
		return nil
	}
}

func boolSetter(field func(*config.CLIConfig) *bool) configSetter {
	return func(c *config.CLIConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%q is not true or false", v)
		}
		*field(c) = b
		return nil
	}
}

func intSetter(field func(*config.CLIConfig) *int) configSetter {
	return func(c *config.CLIConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%q is not a number", v)
		}
		*field(c) = n
		return nil
	}
}

func durationSetter(field func(*config.CLIConfig) *time.Duration) configSetter {
	return func(c *config.CLIConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%q is not a duration", v)
		}
		*field(c) = d
		return nil
	}
}

var configSetters = map[string]configSetter{
	"output_format": func(c *config.CLIConfig, v string) error {
		f := config.OutputFormat(v)
		if !f.IsValid() {
			return fmt.Errorf("%q must be text, json, or yaml", v)
		}
		c.OutputFormat = f
		return nil
	},
	"log_format": func(c *config.CLIConfig, v string) error {
		if v != config.LogFormatConsole && v != config.LogFormatJSON {
			return fmt.Errorf("%q must be console or json", v)
		}
		c.LogFormat = v
		return nil
	},
	"profiles_file": func(c *config.CLIConfig, v string) error {
		if _, err := config.ExpandPath(v); err != nil {
			return err
		}
		c.ProfilesFile = v
		return nil
	},
	"debug":                           boolSetter(func(c *config.CLIConfig) *bool { return &c.Debug }),
	"tick_interval":                   durationSetter(func(c *config.CLIConfig) *time.Duration { return &c.TickInterval }),
	"classification.enabled":          boolSetter(func(c *config.CLIConfig) *bool { return &c.Classification.Enabled }),
	"classification.min_elapsed":      durationSetter(func(c *config.CLIConfig) *time.Duration { return &c.Classification.MinElapsed }),
	"classification.min_fragments":    intSetter(func(c *config.CLIConfig) *int { return &c.Classification.MinFragments }),
	"classification.switch_threshold": intSetter(func(c *config.CLIConfig) *int { return &c.Classification.SwitchThreshold }),
	"classification.timeout":          durationSetter(func(c *config.CLIConfig) *time.Duration { return &c.Classification.Timeout }),
	"semantic.address":                stringSetter(func(c *config.CLIConfig) *string { return &c.Semantic.Address }),
	"semantic.method":                 stringSetter(func(c *config.CLIConfig) *string { return &c.Semantic.Method }),
	"semantic.insecure":               boolSetter(func(c *config.CLIConfig) *bool { return &c.Semantic.Insecure }),
	"semantic.timeout":                durationSetter(func(c *config.CLIConfig) *time.Duration { return &c.Semantic.Timeout }),
	"redis.address":                   stringSetter(func(c *config.CLIConfig) *string { return &c.Redis.Address }),
	"redis.stream_prefix":             stringSetter(func(c *config.CLIConfig) *string { return &c.Redis.StreamPrefix }),
	"redis.db":                        intSetter(func(c *config.CLIConfig) *int { return &c.Redis.DB }),
	"postgres.host":                   stringSetter(func(c *config.CLIConfig) *string { return &c.Postgres.Host }),
	"postgres.port":                   intSetter(func(c *config.CLIConfig) *int { return &c.Postgres.Port }),
	"postgres.database":               stringSetter(func(c *config.CLIConfig) *string { return &c.Postgres.Database }),
	"postgres.user":                   stringSetter(func(c *config.CLIConfig) *string { return &c.Postgres.User }),
	"postgres.sslmode":                stringSetter(func(c *config.CLIConfig) *string { return &c.Postgres.SSLMode }),
}

// setConfigValue applies one "config set" key. Unknown keys and bad values
// wrap ErrValidation.
func setConfigValue(c *config.CLIConfig, key, value string) error {
	set, ok := configSetters[key]
	if !ok {
		return fmt.Errorf("unknown configuration key %q: %w", key, mqerrors.ErrValidation)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid %s: %v: %w", key, err, mqerrors.ErrValidation)
	}
	return nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
