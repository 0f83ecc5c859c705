package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every declared association chain",
		Long: `Load the model declarations and walk every association, reporting
missing targets, missing through sources, through cycles and unknown
polymorphic targets. Queries only report these when they resolve the
broken path; validate reports all of them up front.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.config()
			if err != nil {
				return err
			}
			reg, err := env.registry(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			nameColor := color.New(color.FgCyan, color.Bold)
			for _, name := range reg.Names() {
				m, err := reg.Model(name)
				if err != nil {
					return err
				}
				nameColor.Fprintf(out, "%s", m.Name)
				fmt.Fprintf(out, " (%s): %d association(s)\n", m.Table, len(m.Associations))
			}

			if err := reg.ValidateAll(); err != nil {
				errColor := color.New(color.FgRed)
				problems := 0
				var joined interface{ Unwrap() []error }
				if errors.As(err, &joined) {
					for _, e := range joined.Unwrap() {
						errColor.Fprintf(out, "  ✗ %v\n", e)
						problems++
					}
				} else {
					errColor.Fprintf(out, "  ✗ %v\n", err)
					problems = 1
				}
				return fmt.Errorf("%d invalid association(s)", problems)
			}

			color.New(color.FgGreen).Fprintf(out, "✓ %d model(s) valid\n", reg.Count())
			return nil
		},
	}
}
