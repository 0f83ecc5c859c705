package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/assoc/internal/logging"
	"github.com/conduit-lang/assoc/pkg/orm"
)

// NewSQLCommand creates the sql command
func NewSQLCommand(env *environment) *cobra.Command {
	var (
		flags   queryFlags
		dialect string
	)

	cmd := &cobra.Command{
		Use:   "sql MODEL",
		Short: "Compile a query to SQL without running it",
		Long: `Compile a query against MODEL and print the SQL statement and its
bound arguments. No database connection is made.`,
		Example: `  # Posts with approved comments
  assoc sql Post --join comments

  # Nested path, filtered and sorted
  assoc sql Post --left-join comments.author -f status=published -s -id

  # SQLite placeholders
  assoc sql Post -f id=1,2 --dialect sqlite3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.config()
			if err != nil {
				return err
			}
			reg, err := env.registry(cfg)
			if err != nil {
				return err
			}
			d, err := dialectFor(dialect)
			if err != nil {
				return err
			}

			o := orm.New(reg, nil,
				orm.WithDialect(d),
				orm.WithLogger(logging.Must(cfg.Log.LoggingOptions())))
			defer o.Close()

			q, err := flags.build(o, args[0])
			if err != nil {
				return err
			}
			sqlText, sqlArgs, err := q.ToSQL()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, sqlText)
			if len(sqlArgs) > 0 {
				argColor := color.New(color.FgYellow)
				for i, a := range sqlArgs {
					argColor.Fprintf(out, "  $%d = %#v\n", i+1, a)
				}
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "SQL dialect: postgres or sqlite3")
	return cmd
}
