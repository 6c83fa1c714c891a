package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/partforge/partforge/pkg/cache"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/pipeline"
	"github.com/partforge/partforge/pkg/plate"
)

// newConvertCmd creates the convert command.
func newConvertCmd() *cobra.Command {
	var (
		output         string
		format         string
		runValidation  bool
		excludeWheels  bool
		blockOnInvalid bool
		noCache        bool
		refresh        bool

		plateThickness float64
		holeDiameter   float64
		holes          []string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a model file to another format",
		Long: `Convert a 3D model or vector file to another format.

The source format is detected from the file extension. The output format
comes from --format, or from the extension of --output when set.

With --plate-thickness the input outline becomes a generated mounting
plate: the outline is extruded and screw holes are punched at each
--hole position before conversion.`,
		Example: `  partforge convert chassis.stl --format obj
  partforge convert wheel.ply -o wheel.stl --validate
  partforge convert outline.svg -o plate.stl --plate-thickness 3 --hole 10,10 --hole 70,10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)
			input := args[0]

			if output == "" && format == "" {
				return fmt.Errorf("either --output or --format is required")
			}
			if format == "" {
				f, err := codec.FormatFromFilename(output)
				if err != nil {
					return err
				}
				format = string(f)
			}
			if output == "" {
				base := strings.TrimSuffix(input, filepath.Ext(input))
				output = base + "." + format
			}

			raw, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			opts := pipeline.Options{
				OutputFormat:   format,
				Filename:       filepath.Base(input),
				Validate:       runValidation,
				ExcludeWheels:  excludeWheels,
				BlockOnInvalid: blockOnInvalid,
				Refresh:        refresh,
				Logger:         logger,
			}

			if cmd.Flags().Changed("plate-thickness") {
				spec, err := plateSpecFromFlags(plateThickness, holeDiameter, holes)
				if err != nil {
					return err
				}
				opts.Plate = spec
			}

			c, err := openCache(noCache)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(c, nil, logger)
			defer runner.Close()

			prog := newProgress(logger)
			result, err := runner.Convert(ctx, raw, opts)
			if err != nil {
				return err
			}

			if result.Report != nil {
				printReport(result.Report)
				fmt.Println()
			}

			if result.OutputBytes == nil {
				printWarning("Conversion blocked: part failed validation")
				return nil
			}

			if err := os.WriteFile(output, result.OutputBytes, 0644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			prog.done(fmt.Sprintf("Converted %s", filepath.Base(input)))
			printSuccess("Wrote %s output", strings.ToUpper(format))
			printFile(output)
			printStats(result.Stats.VertexCount, result.Stats.FaceCount, result.CacheInfo.ArtifactHit)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (stl, obj, ply, svg)")
	cmd.Flags().BoolVar(&runValidation, "validate", false, "validate part compatibility alongside conversion")
	cmd.Flags().BoolVar(&excludeWheels, "exclude-wheels", false, "skip numeric checks for wheels")
	cmd.Flags().BoolVar(&blockOnInvalid, "block-on-invalid", false, "withhold the output when validation fails")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the artifact cache")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and recompute")
	cmd.Flags().Float64Var(&plateThickness, "plate-thickness", plate.ThicknessThick, "generate a mounting plate of this thickness (1.5 or 3.0)")
	cmd.Flags().Float64Var(&holeDiameter, "hole-diameter", plate.DefaultScrewHoleDiameter, "screw hole diameter in mm")
	cmd.Flags().StringArrayVar(&holes, "hole", nil, "screw hole position as x,y in mm (repeatable)")

	return cmd
}

// plateSpecFromFlags builds a plate spec from the CLI flags.
func plateSpecFromFlags(thickness, holeDiameter float64, holes []string) (*plate.Spec, error) {
	spec := &plate.Spec{
		ThicknessMM:         thickness,
		ScrewHoleDiameterMM: holeDiameter,
	}
	for _, h := range holes {
		pos, err := parseHolePosition(h)
		if err != nil {
			return nil, err
		}
		spec.HolePositions = append(spec.HolePositions, pos)
	}
	return spec, nil
}

// parseHolePosition parses an "x,y" flag value.
func parseHolePosition(s string) (r2.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return r2.Vec{}, fmt.Errorf("invalid hole position %q (expected x,y)", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return r2.Vec{}, fmt.Errorf("invalid hole position %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return r2.Vec{}, fmt.Errorf("invalid hole position %q: %w", s, err)
	}
	return r2.Vec{X: x, Y: y}, nil
}

// openCache returns the file cache, or the null cache when disabled or
// when the cache directory cannot be determined.
func openCache(noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}
