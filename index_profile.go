package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var indexProfileID string

func init() {
	indexProfileCmd.Flags().StringVar(&indexProfileID, "profile", "", "profile id (uuid) the notebook is stored under")
	_ = indexProfileCmd.MarkFlagRequired("profile")
}

var indexProfileCmd = &cobra.Command{
	Use:   "index-profile [notebook.ipynb]",
	Short: "Split a reference notebook into sections and index them in Qdrant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notebook, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		svc, closeRepo, err := newIndexingService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		n, err := svc.IndexProfile(cmd.Context(), indexProfileID, notebook)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d sections of profile %s\n", n, indexProfileID)
		return nil
	},
}
