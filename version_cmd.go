package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"data-sculptor/version"
)

type versionPayload struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := versionPayload{
			Tool:      "data-sculptor",
			Version:   version.Version,
			GitCommit: version.GitCommit,
			BuildDate: version.BuildDate,
		}
		out := cmd.OutOrStdout()
		switch versionFormat {
		case "json":
			return json.NewEncoder(out).Encode(payload)
		case "pretty":
			colored, err := useColor(cmd, os.Stdout)
			if err != nil {
				return err
			}
			name := color.New(color.FgYellow, color.Bold)
			if colored {
				name.EnableColor()
			} else {
				name.DisableColor()
			}
			fmt.Fprintf(out, "%s %s\n", name.Sprint(payload.Tool), payload.Version)
			if payload.GitCommit != "" {
				fmt.Fprintf(out, "commit: %s\n", payload.GitCommit)
			}
			if payload.BuildDate != "" {
				fmt.Fprintf(out, "built:  %s\n", payload.BuildDate)
			}
			return nil
		default:
			return fmt.Errorf("unknown format %q", versionFormat)
		}
	},
}
