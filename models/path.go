package models

// One chunk of a snapped route
type Segment struct {
	Coordinates          CoordinateArray
	Direction            Direction
	ContainsTurningPoint bool
	StartOrder           int
}

// Road-aligned polyline of a route, split into tagged segments
type SnappedPath struct {
	RouteID  Key
	RouteNo  string
	Segments []Segment
}

// Returns every coordinate of the path in order
func (p *SnappedPath) Coordinates() CoordinateArray {
	var coords CoordinateArray
	for _, segment := range p.Segments {
		coords = append(coords, segment.Coordinates...)
	}
	return coords
}
