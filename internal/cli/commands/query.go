package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/assoc/internal/orm/db"
	"github.com/conduit-lang/assoc/internal/orm/record"
	"github.com/conduit-lang/assoc/pkg/orm"
)

// NewQueryCommand creates the query command
func NewQueryCommand(env *environment) *cobra.Command {
	var (
		flags queryFlags
		count bool
	)

	cmd := &cobra.Command{
		Use:   "query MODEL",
		Short: "Run a query and print the hydrated records",
		Long: `Run a query against MODEL on the configured database and print the
hydrated records, with their loaded associations, as YAML.

Preloaded paths (--include) are fetched with one statement per level;
join-loaded paths (--join-load) are fetched in a single statement.`,
		Example: `  # Authors with their posts and each post's comments
  assoc query Author --include posts.comments

  # Same tree in one statement
  assoc query Author --join-load posts.comments

  # Count instead of fetching
  assoc query Post --join comments --count`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := env.config()
			if err != nil {
				return err
			}
			o, err := orm.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer o.Close()

			q, err := flags.build(o, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if count {
				n, err := q.Count(ctx)
				if err != nil {
					return db.ConvertError(err)
				}
				fmt.Fprintln(out, n)
				return nil
			}

			records, err := q.All(ctx)
			if err != nil {
				return db.ConvertError(err)
			}

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(record.Snapshots(records)); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.ErrOrStderr(), "%d %s record(s)\n", len(records), args[0])
			return nil
		},
	}

	flags.register(cmd)
	flags.registerLoading(cmd)
	cmd.Flags().BoolVar(&count, "count", false, "Print the number of matching records")
	return cmd
}
