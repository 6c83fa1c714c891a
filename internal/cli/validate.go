package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/part"
	"github.com/partforge/partforge/pkg/validate"
)

// newValidateCmd creates the validate command.
func newValidateCmd() *cobra.Command {
	var (
		excludeWheels bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a part against the compatibility rules",
		Long: `Validate a 3D model against the Mini 4WD part compatibility rules.

The part category (chassis, wheel, body) is detected from the filename
and geometry, then the category's rule set is applied. The command exits
non-zero when the part has hard rule violations.`,
		Example: `  partforge validate chassis_v2.stl
  partforge validate wheel.obj --exclude-wheels
  partforge validate body.ply --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := args[0]

			raw, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			report, err := validateFile(ctx, raw, filepath.Base(input), excludeWheels)
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
			} else {
				printReport(report)
				fmt.Println()
			}

			if !report.Valid {
				return fmt.Errorf("part is not compatible (%d errors)", len(report.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&excludeWheels, "exclude-wheels", false, "skip numeric checks for wheels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}

// validateFile decodes raw bytes and produces a validation report. 2D
// designs and CAD pass-through formats get their fixed reports without
// geometric analysis.
func validateFile(ctx context.Context, raw []byte, filename string, excludeWheels bool) (*validate.Report, error) {
	format, err := codec.FormatFromFilename(filename)
	if err != nil {
		return nil, err
	}
	g, err := codec.Decode(raw, format)
	if err != nil {
		return nil, err
	}

	switch g.Kind {
	case codec.KindPath:
		return validate.Validate2D(), nil
	case codec.KindOpaque:
		return validate.ValidateOpaque(), nil
	}

	sig, err := analysis.Analyze(ctx, g.Mesh)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "analysis aborted")
	}
	category := part.Classify(filename, sig, g.Mesh)
	return validate.Validate(sig, category, excludeWheels), nil
}
