package domain

import (
	"errors"
	"fmt"
)

// Ошибки валидации геометрии.
var (
	// ErrInvalidGeometry — геометрия не проходит валидацию.
	ErrInvalidGeometry = errors.New("invalid bounding geometry")
)

// BoundingGeometry — пространственный экстент заказа.
//
// Либо bounding box (West/South/East/North), либо polyfile —
// непрозрачный полигональный фильтр. Ровно одно из двух.
// Неизменяема после создания заказа.
type BoundingGeometry struct {
	// West, South, East, North — границы bounding box в градусах.
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`

	// Polyfile — полигональный фильтр в формате poly.
	// Если задан, скалярные границы игнорируются.
	Polyfile string `json:"polyfile,omitempty"`
}

// NewBoundingBox создаёт геометрию из четырёх границ.
func NewBoundingBox(west, south, east, north float64) (BoundingGeometry, error) {
	g := BoundingGeometry{West: west, South: south, East: east, North: north}
	if err := g.Validate(); err != nil {
		return BoundingGeometry{}, err
	}
	return g, nil
}

// NewPolyfile создаёт геометрию из полигонального фильтра.
func NewPolyfile(polyfile string) (BoundingGeometry, error) {
	if polyfile == "" {
		return BoundingGeometry{}, fmt.Errorf("%w: empty polyfile", ErrInvalidGeometry)
	}
	return BoundingGeometry{Polyfile: polyfile}, nil
}

// IsPolyfile возвращает true, если экстент задан полигональным фильтром.
func (g BoundingGeometry) IsPolyfile() bool {
	return g.Polyfile != ""
}

// Validate проверяет корректность геометрии.
func (g BoundingGeometry) Validate() error {
	if g.IsPolyfile() {
		return nil
	}
	if g.West >= g.East {
		return fmt.Errorf("%w: west (%v) must be less than east (%v)", ErrInvalidGeometry, g.West, g.East)
	}
	if g.South >= g.North {
		return fmt.Errorf("%w: south (%v) must be less than north (%v)", ErrInvalidGeometry, g.South, g.North)
	}
	if g.West < -180 || g.East > 180 || g.South < -90 || g.North > 90 {
		return fmt.Errorf("%w: extent out of bounds", ErrInvalidGeometry)
	}
	return nil
}
