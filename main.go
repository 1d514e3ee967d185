package main

import (
	"fmt"
	"os"

	"fortio.org/safecast"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"data-sculptor/config"
	"data-sculptor/version"
)

var rootCmd = &cobra.Command{
	Use:   "data-sculptor",
	Short: "Feedback and tutoring service for data-science notebooks",
	Long: `data-sculptor localizes feedback on notebook code and keeps tutoring
conversations grounded in the code the learner is looking at.`,
	SilenceUsage: true,
}

// main registers the subcommands and persistent flags and executes the root command.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(localizeCmd)
	rootCmd.AddCommand(indexProfileCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "dotenv files to load (default .env, .env.local)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration named by the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	envFiles, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return nil, err
	}
	return config.Load(path, envFiles...)
}

// useColor resolves the --color flag for f.
func useColor(cmd *cobra.Command, f *os.File) (bool, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return isTerminal(f) && !color.NoColor, nil
	default:
		return false, fmt.Errorf("invalid --color value %q (want auto, on or off)", mode)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	fd, err := safecast.Conv[int](f.Fd())
	if err != nil {
		return false
	}
	return term.IsTerminal(fd)
}
