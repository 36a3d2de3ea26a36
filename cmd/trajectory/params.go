package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stuartshay/trajectory-worker/internal/config"
)

func newParamsCmd() *cobra.Command {
	var thresholds string

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Print the analysis thresholds as YAML",
		Long: `Print the analysis thresholds as YAML. With --thresholds the profile is
merged over the defaults first, so the output shows what analyze would use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := config.LoadParamsFile(thresholds)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(params)
			if err != nil {
				return fmt.Errorf("encode thresholds: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&thresholds, "thresholds", "", "YAML threshold profile")
	return cmd
}
