package cli

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestParseHolePosition(t *testing.T) {
	tests := []struct {
		input   string
		want    r2.Vec
		wantErr bool
	}{
		{"10,30", r2.Vec{X: 10, Y: 30}, false},
		{"10.5, 29.5", r2.Vec{X: 10.5, Y: 29.5}, false},
		{" 0 , 0 ", r2.Vec{}, false},
		{"10", r2.Vec{}, true},
		{"10,30,50", r2.Vec{}, true},
		{"a,b", r2.Vec{}, true},
		{"", r2.Vec{}, true},
	}
	for _, tt := range tests {
		got, err := parseHolePosition(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseHolePosition(%q) error = %v, wantErr %t", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseHolePosition(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
