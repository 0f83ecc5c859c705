package commands

import (
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	env := &environment{}

	rootCmd := &cobra.Command{
		Use:   "assoc",
		Short: "Association-aware query compiler and loader",
		Long: color.CyanString(`assoc - association-aware queries over a declared model registry

Models and their associations are declared in YAML. assoc compiles
association paths into joins, renders where clauses with SQL NULL
semantics, and hydrates association trees with preload or join-load.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&env.configPath, "config", "", "Config file (default: ./assoc.yaml)")
	flags.StringVar(&env.models, "models", "", "Model declaration file (overrides config)")
	flags.StringVar(&env.databaseURL, "database-url", "", "Database URL (overrides config and DATABASE_URL)")
	flags.StringVar(&env.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewSQLCommand(env))
	rootCmd.AddCommand(NewQueryCommand(env))
	rootCmd.AddCommand(NewValidateCommand(env))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the assoc version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "assoc version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
