package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"data-sculptor/application"
	"data-sculptor/domain"
	"data-sculptor/infrastructure/render"
)

var (
	localizeCode     string
	localizeWarnings string
	localizeOffset   int
	localizeDeep     bool
	localizeFormat   string
)

func init() {
	localizeCmd.Flags().StringVar(&localizeCode, "code", "", "path to the Python code to annotate")
	localizeCmd.Flags().StringVar(&localizeWarnings, "warnings", "", "path to a JSON array of warnings ({description, framework, fix, benefit})")
	localizeCmd.Flags().IntVar(&localizeOffset, "offset", 0, "number of notebook lines before the code")
	localizeCmd.Flags().BoolVar(&localizeDeep, "deep", false, "ask the language model for line hints first")
	localizeCmd.Flags().StringVar(&localizeFormat, "format", "pretty", "output format (pretty|json)")
	_ = localizeCmd.MarkFlagRequired("code")
	_ = localizeCmd.MarkFlagRequired("warnings")
}

var localizeCmd = &cobra.Command{
	Use:   "localize",
	Short: "Place free-text warnings on the lines of a code file",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(localizeCode)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(localizeWarnings)
		if err != nil {
			return err
		}
		var warnings []domain.RawWarning
		if err := json.Unmarshal(raw, &warnings); err != nil {
			return fmt.Errorf("%s: %w", localizeWarnings, err)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		var model domain.LLMClient
		if localizeDeep {
			if model, err = newLLMClient(cfg); err != nil {
				return err
			}
		}
		svc := application.NewFeedbackService(cfg, model, nil, nil, newTokenizer(cfg))

		located, err := svc.LocalizeWarnings(cmd.Context(), application.LocalizeRequest{
			Code:       string(code),
			Warnings:   warnings,
			LineOffset: localizeOffset,
			Deep:       localizeDeep,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch localizeFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(located)
		case "pretty":
			colored, err := useColor(cmd, os.Stdout)
			if err != nil {
				return err
			}
			width := 0
			if isTerminal(os.Stdout) {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
					width = w
				}
			}
			if err := render.Pretty(out, domain.NewCodeDocument(string(code), 1), located, render.PrettyOpts{
				Path:       localizeCode,
				LineOffset: localizeOffset,
				Color:      colored,
				Width:      width,
			}); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d warnings localized\n", len(located), len(warnings))
			return nil
		default:
			return fmt.Errorf("unknown format %q", localizeFormat)
		}
	},
}
