package ptz

import (
	"math"
	"testing"
)

func TestFOVEndpoints(t *testing.T) {
	h, v := FOV(1)
	if h != HFOVWide || v != VFOVWide {
		t.Errorf("FOV(1) = (%v, %v), want (%v, %v)", h, v, HFOVWide, VFOVWide)
	}
	h, v = FOV(40)
	if math.Abs(h-HFOVTele) > eps || math.Abs(v-VFOVTele) > eps {
		t.Errorf("FOV(40) = (%v, %v), want (%v, %v)", h, v, HFOVTele, VFOVTele)
	}
}

func TestFOVMonotonic(t *testing.T) {
	prevH, prevV := FOV(1)
	for z := 1.0; z <= 40; z += 0.25 {
		h, v := FOV(z)
		if h > prevH || v > prevV {
			t.Fatalf("FOV increased at zoom %v: (%v,%v) after (%v,%v)", z, h, v, prevH, prevV)
		}
		prevH, prevV = h, v
	}
}

func TestFOVClampsZoom(t *testing.T) {
	tests := []struct {
		name string
		zoom float64
		ref  float64
	}{
		{"below range", 0, 1},
		{"negative", -5, 1},
		{"above range", 100, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, v := FOV(tt.zoom)
			wh, wv := FOV(tt.ref)
			if h != wh || v != wv {
				t.Errorf("FOV(%v) = (%v,%v), want (%v,%v)", tt.zoom, h, v, wh, wv)
			}
		})
	}
}

func TestFOVMidpoint(t *testing.T) {
	h, v := FOV(20.5)
	if math.Abs(h-(HFOVWide+HFOVTele)/2) > eps {
		t.Errorf("hFOV at midpoint = %v", h)
	}
	if math.Abs(v-(VFOVWide+VFOVTele)/2) > eps {
		t.Errorf("vFOV at midpoint = %v", v)
	}
}
