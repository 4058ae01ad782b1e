package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/meetiq/config"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// ProfilesCommandDeps holds the dependencies for profile commands.
type ProfilesCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
}

// DefaultProfilesDeps returns the default dependencies for production use.
func DefaultProfilesDeps() *ProfilesCommandDeps {
	return &ProfilesCommandDeps{LoadConfig: config.LoadConfig}
}

// NewProfilesCommand creates the profiles command group.
func NewProfilesCommand(deps *ProfilesCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultProfilesDeps()
	}

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect meeting type profiles",
		Long: `Inspect the meeting type profiles used for scoring.

Each profile weights the six quality dimensions (participation, focus,
actions, decisions, engagement, efficiency) and carries the narrative shown
in reports. Set profiles_file in the config to replace the built-in table.`,
	}

	cmd.AddCommand(newProfilesListCommand(deps))
	cmd.AddCommand(newProfilesShowCommand(deps))
	return cmd
}

func newProfilesListCommand(deps *ProfilesCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meeting type profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, format, err := profilesSetup(deps, output)
			if err != nil {
				return err
			}
			if format != config.OutputFormatText {
				return writeStructured(cmd.OutOrStdout(), format, table.Profiles())
			}
			printProfileList(cmd.OutOrStdout(), table)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func newProfilesShowCommand(deps *ProfilesCommandDeps) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:     "show <type>",
		Short:   "Show one meeting type profile",
		Example: "  meetiq profiles show standup\n  meetiq profiles show one-on-one -o yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, format, err := profilesSetup(deps, output)
			if err != nil {
				return err
			}
			p, ok := table.Lookup(profile.Normalize(args[0]))
			if !ok {
				return fmt.Errorf("meeting type %q: %w", args[0], mqerrors.ErrNotFound)
			}
			if format != config.OutputFormatText {
				return writeStructured(cmd.OutOrStdout(), format, p)
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: text, json, yaml")
	return cmd
}

func profilesSetup(deps *ProfilesCommandDeps, output string) (*profile.Table, config.OutputFormat, error) {
	cfg, err := resolveConfig(deps.Config, deps.LoadConfig)
	if err != nil {
		return nil, "", err
	}
	format, err := resolveFormat(cfg, output)
	if err != nil {
		return nil, "", err
	}
	table, err := loadTable(cfg)
	if err != nil {
		return nil, "", err
	}
	return table, format, nil
}

func printProfileList(w io.Writer, table *profile.Table) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tTYPICAL\tDESCRIPTION")
	for _, p := range table.Profiles() {
		fmt.Fprintf(tw, "%s\t%s\t%dm\t%s\n", p.ID, p.DisplayName(), p.TypicalMinutes, p.Description)
	}
	tw.Flush()
}

func printProfile(w io.Writer, p profile.Profile) {
	fmt.Fprintf(w, "%s (%s)\n", p.DisplayName(), p.ID)
	if p.Description != "" {
		fmt.Fprintf(w, "  %s\n", p.Description)
	}
	fmt.Fprintf(w, "  Typical duration: %s\n", p.TypicalDuration())

	fmt.Fprintln(w, "\nWeights:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, d := range profile.Dimensions() {
		fmt.Fprintf(tw, "  %s\t%.2f\n", d, p.Weights.Get(d))
	}
	tw.Flush()

	printList(w, "Primary goals", p.PrimaryGoals)
	printList(w, "Success criteria", p.SuccessCriteria)
	printList(w, "Red flags", p.RedFlags)
	if len(p.TitleKeywords) > 0 {
		fmt.Fprintf(w, "\nTitle keywords: %s (weight %.2f)\n", strings.Join(p.TitleKeywords, ", "), p.KeywordWeight)
	}
}

func printList(w io.Writer, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", heading)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
