package volstream

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestSelectLevel(t *testing.T) {
	spacings := []mgl64.Vec3{{1, 1, 1}, {2, 2, 2}, {4, 4, 4}, {8, 8, 8}}
	tests := []struct {
		name      string
		ppu       float64
		threshold float64
		want      int
	}{
		{"unknown projection", 0, 1, 0},
		{"no threshold", 1, 0, 0},
		{"zoomed in", 4, 1, 0},
		{"one to one", 1, 1, 0},
		{"half", 0.5, 1, 1},
		{"far", 0.1, 1, 3},
		{"interactive threshold", 0.5, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectLevel(spacings, tt.ppu, tt.threshold); got != tt.want {
				t.Errorf("SelectLevel(ppu=%v, threshold=%v) = %d, want %d", tt.ppu, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestSelectLevelAnisotropic(t *testing.T) {
	spacings := []mgl64.Vec3{{1, 1, 4}, {2, 2, 8}}
	// The smallest spacing decides.
	if got := SelectLevel(spacings, 0.5, 1); got != 1 {
		t.Errorf("SelectLevel() = %d, want 1", got)
	}
}
