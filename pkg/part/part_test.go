package part

import (
	"context"
	"testing"

	"github.com/partforge/partforge/pkg/analysis"
	"github.com/partforge/partforge/pkg/geom"
)

func analyze(t *testing.T, m *geom.Mesh) *analysis.Signature {
	t.Helper()
	sig, err := analysis.Analyze(context.Background(), m)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	return sig
}

func TestClassifyFilenameTokens(t *testing.T) {
	tests := []struct {
		filename string
		want     Category
	}{
		{"my_chassis_v2.stl", CategoryChassis},
		{"FRAME-lower.obj", CategoryChassis},
		{"wheel_front.stl", CategoryWheel},
		{"Tire26mm.ply", CategoryWheel},
		{"body-aero.stl", CategoryBody},
		{"shell_print.stl", CategoryBody},
		{"mystery.stl", CategoryUnknown},
		{"", CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.filename, nil, nil); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestClassifyFilenameWinsOverGeometry(t *testing.T) {
	// Disc geometry, but the filename hint takes precedence.
	m := geom.Tube(24, 2, 10, 32)
	if got := Classify("chassis.stl", analyze(t, m), m); got != CategoryChassis {
		t.Errorf("Classify = %q, want Chassis from the filename hint", got)
	}
}

func TestClassifyFlatPlateIsChassis(t *testing.T) {
	m := geom.Box(150, 100, 3)
	if got := Classify("part.stl", analyze(t, m), m); got != CategoryChassis {
		t.Errorf("Classify(150x100x3 plate) = %q, want Chassis", got)
	}
}

func TestClassifyDiscIsWheel(t *testing.T) {
	m := geom.Tube(24, 2, 10, 32)
	if got := Classify("part.stl", analyze(t, m), m); got != CategoryWheel {
		t.Errorf("Classify(24mm disc) = %q, want Wheel", got)
	}
}

func TestClassifyCubeIsUnknown(t *testing.T) {
	m := geom.Box(50, 50, 50)
	if got := Classify("part.stl", analyze(t, m), m); got != CategoryUnknown {
		t.Errorf("Classify(cube) = %q, want Unknown", got)
	}
}

func TestClassifyTallCylinderIsNotWheel(t *testing.T) {
	// Circular silhouette but taller than 60% of its diameter.
	m := geom.Cylinder(20, 40, 32)
	if got := Classify("part.stl", analyze(t, m), m); got == CategoryWheel {
		t.Error("tall cylinder should not classify as Wheel")
	}
}

func TestClassifyNilSignature(t *testing.T) {
	if got := Classify("part.stl", nil, nil); got != CategoryUnknown {
		t.Errorf("Classify with nil signature = %q, want Unknown", got)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	m := geom.Tube(26, 2, 12, 32)
	sig := analyze(t, m)
	first := Classify("part.stl", sig, m)
	for i := 0; i < 3; i++ {
		if got := Classify("part.stl", sig, m); got != first {
			t.Fatalf("Classify is not deterministic: %q then %q", first, got)
		}
	}
}
