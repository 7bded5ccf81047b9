package cmd

import "github.com/spf13/cobra"

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate metadata files without writing the index",
	Long: `Run schema validation over every discovered metadata file and report
the result. The index is never written and nothing is published.

Example:
  expindex validate
  expindex validate --pattern "experiments/2024/**/metadata.yml"
  expindex validate --jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd, true)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
