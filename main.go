// Package main provides the meetiq CLI entry point.
// meetiq scores meeting quality from transcripts and detects the meeting type.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/meetiq/cmd"
	"github.com/otherjamesbrown/meetiq/config"
	"github.com/otherjamesbrown/meetiq/pkg/buildinfo"
)

// Global flags and state.
var (
	debug     bool
	logFormat string

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "meetiq",
	Short: "Meeting IQ - meeting quality scoring",
	Long: `meetiq scores the quality of a meeting from its transcript.

Each meeting is scored 0-100 on six dimensions (participation, focus,
actions, decisions, engagement, efficiency) weighted by the meeting type.
The type is detected from the title and the conversation, or pinned with
--type.

COMMON WORKFLOWS:
  Score a recording:  meetiq replay "Weekly Sync-20240312 0930-1.vtt"
  Detect its type:    meetiq classify call.vtt
  Inspect profiles:   meetiq profiles list  ->  meetiq profiles show standup
  Semantic service:   meetiq auth set-token  ->  meetiq replay call.vtt --semantic

Configuration lives in ~/.meetiq/config.yaml (override the directory with
MEETIQ_CONFIG_DIR). MEETIQ_* environment variables override the file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Load configuration.
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if debug {
			cfg.Debug = true
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return nil
	},
}

// loadConfig hands commands the config prepared by PersistentPreRunE.
func loadConfig() (*config.CLIConfig, error) {
	if cfg != nil {
		return cfg, nil
	}
	return config.LoadConfig()
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the meetiq CLI.

Examples:
  meetiq version
  meetiq version --output-json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := cmd.OutOrStdout()

		if versionOutputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Fprintf(out, "%s version %s\n", info.Name, info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
		return nil
	},
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for meetiq.

Bash:
  $ source <(meetiq completion bash)

Zsh:
  $ meetiq completion zsh > "${fpath[1]}/_meetiq"

Fish:
  $ meetiq completion fish | source

PowerShell:
  PS> meetiq completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return rootCmd.GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (default: console on a terminal)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "meetings", Title: "Meetings:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Meetings
	replayDeps := cmd.DefaultReplayDeps()
	replayDeps.LoadConfig = loadConfig
	replayCmd := cmd.NewReplayCommand(replayDeps)
	replayCmd.GroupID = "meetings"
	rootCmd.AddCommand(replayCmd)

	classifyDeps := cmd.DefaultClassifyDeps()
	classifyDeps.LoadConfig = loadConfig
	classifyCmd := cmd.NewClassifyCommand(classifyDeps)
	classifyCmd.GroupID = "meetings"
	rootCmd.AddCommand(classifyCmd)

	profilesDeps := cmd.DefaultProfilesDeps()
	profilesDeps.LoadConfig = loadConfig
	profilesCmd := cmd.NewProfilesCommand(profilesDeps)
	profilesCmd.GroupID = "meetings"
	rootCmd.AddCommand(profilesCmd)

	// Setup
	configDeps := cmd.DefaultConfigDeps()
	configDeps.LoadConfig = loadConfig
	configCmd := cmd.NewConfigCommand(configDeps)
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)

	authCmd := cmd.NewAuthCommand(nil)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	completionCmd.GroupID = "setup"
	rootCmd.AddCommand(completionCmd)

	versionCmd.GroupID = "setup"
	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output as JSON")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
