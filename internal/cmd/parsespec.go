package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/specparse"
)

var parseSpecCmd = &cobra.Command{
	Use:   "parse-spec <spec.md>",
	Short: "Turn a markdown spec into a feature backlog",
	Long: `Parse-spec converts a markdown specification into the features file the
run command consumes. Each second-level heading becomes one feature; list
items beneath it become implementation steps. The transformation is
deterministic, so re-running it on the same spec produces the same backlog.`,
	Args: cobra.ExactArgs(1),
	RunE: runParseSpec,
}

var (
	parseSpecOutput string
	parseSpecForce  bool
)

func init() {
	parseSpecCmd.Flags().StringVarP(&parseSpecOutput, "output", "o", "features.yaml", "features file to write")
	parseSpecCmd.Flags().BoolVar(&parseSpecForce, "force", false, "overwrite an existing features file")

	rootCmd.AddCommand(parseSpecCmd)
}

func runParseSpec(cmd *cobra.Command, args []string) error {
	features, err := specparse.ParseFile(args[0])
	if err != nil {
		return err
	}

	out, err := filepath.Abs(parseSpecOutput)
	if err != nil {
		return err
	}
	if _, err := os.Stat(out); err == nil && !parseSpecForce {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("%s already exists", out)).
			WithSuggestion("Pass --force to overwrite, or choose another --output path").
			WithSuggestion("Overwriting discards all recorded feature statuses")
	}

	if err := specparse.WriteFeatures(features, out); err != nil {
		return err
	}

	fmt.Printf("Wrote %d features to %s\n", len(features), out)
	return nil
}
