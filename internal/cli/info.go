package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/part"
)

// newInfoCmd creates the info command.
func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Print the geometry signature of a file",
		Long: `Decode a model file and print its geometry signature: bounding box,
watertightness, volume, estimated wall thickness, and detected axle
hole candidates.`,
		Example: `  partforge info chassis.stl`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := args[0]

			raw, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			format, err := codec.FormatFromFilename(input)
			if err != nil {
				return err
			}
			g, err := codec.Decode(raw, format)
			if err != nil {
				return err
			}

			fmt.Println(StyleTitle.Render(filepath.Base(input)))
			printKeyValue("format", strings.ToUpper(string(format)))

			switch g.Kind {
			case codec.KindOpaque:
				printKeyValue("kind", "CAD pass-through")
				printKeyValue("size", fmt.Sprintf("%d bytes", len(raw)))
				return nil
			case codec.KindPath:
				printKeyValue("kind", "2D design")
				printKeyValue("polylines", fmt.Sprintf("%d", len(g.Path.Polylines)))
				lo, hi := g.Path.Bounds2D()
				printKeyValue("extent", fmt.Sprintf("%.2f × %.2f mm", hi.X-lo.X, hi.Y-lo.Y))
				return nil
			}

			sig, err := analysis.Analyze(ctx, g.Mesh)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "analysis aborted")
			}

			printKeyValue("kind", "3D mesh")
			printKeyValue("category", string(part.Classify(filepath.Base(input), sig, g.Mesh)))
			printKeyValue("dimensions", fmt.Sprintf("%.2f × %.2f × %.2f mm", sig.Length, sig.Width, sig.Height))
			printKeyValue("watertight", fmt.Sprintf("%t", sig.Watertight))
			if sig.Volume != nil {
				printKeyValue("volume", fmt.Sprintf("%.2f mm³", *sig.Volume))
			} else {
				printKeyValue("volume", StyleDim.Render("n/a (not watertight)"))
			}
			if sig.WallThickness != nil {
				printKeyValue("wall", fmt.Sprintf("%.2f mm (estimate)", *sig.WallThickness))
			}
			printKeyValue("mesh", fmt.Sprintf("%d vertices, %d faces", sig.VertexCount, sig.FaceCount))

			if len(sig.Holes) > 0 {
				fmt.Println()
				fmt.Println(StyleDim.Render("AXLE HOLE CANDIDATES"))
				for _, h := range sig.Holes {
					printDetail("Ø %.2f mm at (%.1f, %.1f, %.1f)", h.Diameter, h.Center.X, h.Center.Y, h.Center.Z)
				}
			}
			if len(sig.Issues) > 0 {
				fmt.Println()
				fmt.Println(StyleDim.Render("ISSUES"))
				for _, issue := range sig.Issues {
					printDetail("%s", issue)
				}
			}
			return nil
		},
	}

	return cmd
}
