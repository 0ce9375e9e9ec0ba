package domain

import (
	"errors"
	"testing"
)

func TestNewBoundingBox(t *testing.T) {
	g, err := NewBoundingBox(8.28, 47.0, 8.72, 47.25)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.IsPolyfile() {
		t.Error("bounding box should not be a polyfile")
	}
	if g.West != 8.28 || g.North != 47.25 {
		t.Errorf("unexpected bounds: %+v", g)
	}
}

func TestNewBoundingBox_Invalid(t *testing.T) {
	tests := []struct {
		name                     string
		west, south, east, north float64
	}{
		{"west equals east", 10, 40, 10, 50},
		{"west greater than east", 20, 40, 10, 50},
		{"south equals north", 10, 40, 20, 40},
		{"south greater than north", 10, 50, 20, 40},
		{"west out of range", -200, 40, 20, 50},
		{"east out of range", 10, 40, 200, 50},
		{"north out of range", 10, 40, 20, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBoundingBox(tt.west, tt.south, tt.east, tt.north)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestNewPolyfile(t *testing.T) {
	g, err := NewPolyfile("region\n1\n 8.0 47.0\nEND\nEND\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.IsPolyfile() {
		t.Error("expected polyfile geometry")
	}
	// Скалярные границы polyfile-геометрии не валидируются.
	if err := g.Validate(); err != nil {
		t.Errorf("polyfile geometry should always validate, got %v", err)
	}
}

func TestNewPolyfile_Empty(t *testing.T) {
	if _, err := NewPolyfile(""); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry for empty polyfile, got %v", err)
	}
}
