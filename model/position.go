package model

import "math"

// Position is a 2D point in the simulated deployment area, in metres.
// The origin is the south-west corner of the area.
type Position struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

// DistanceTo returns the straight-line distance between two points.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}
