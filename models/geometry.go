package models

import "math"

const degToRad = math.Pi / 180

// planar is a point in a local equirectangular frame centred on a reference
// coordinate. Units are degrees of latitude.
type planar struct {
	x, y float64
}

func toPlanar(origin, c Coordinate) planar {
	scale := math.Cos(origin.Latitude * degToRad)
	return planar{
		x: (c.Longitude - origin.Longitude) * scale,
		y: c.Latitude - origin.Latitude,
	}
}

func fromPlanar(origin Coordinate, p planar) Coordinate {
	scale := math.Cos(origin.Latitude * degToRad)
	lon := origin.Longitude
	if scale != 0 {
		lon += p.x / scale
	}
	return NewCoordinate(origin.Latitude+p.y, lon)
}

// Returns the projection parameter of p onto segment ab, clamped to [0, 1]
func projectOnSegment(p, a, b planar) float64 {
	dx := b.x - a.x
	dy := b.y - a.y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return 0
	}
	t := ((p.x-a.x)*dx + (p.y-a.y)*dy) / lenSq
	return math.Max(0, math.Min(1, t))
}

// Returns the point on segment ab closest to c
func ClosestPointOnSegment(c, a, b Coordinate) Coordinate {
	p := toPlanar(c, c)
	pa := toPlanar(c, a)
	pb := toPlanar(c, b)
	t := projectOnSegment(p, pa, pb)
	return fromPlanar(c, planar{
		x: pa.x + t*(pb.x-pa.x),
		y: pa.y + t*(pb.y-pa.y),
	})
}

// Returns the point on the polyline closest to c and its distance in meters.
// ok is false when the line is empty.
//
// Projection happens in an equirectangular frame centred on c, which keeps
// the error negligible over the few hundred meters a corridor spans.
func ClosestPointOnPolyline(c Coordinate, line CoordinateArray) (closest Coordinate, meters float64, ok bool) {
	switch len(line) {
	case 0:
		return Coordinate{}, 0, false
	case 1:
		return line[0], c.DistanceTo(line[0]), true
	}

	p := toPlanar(c, c)
	best := math.MaxFloat64
	var bestPoint planar

	for i := 1; i < len(line); i++ {
		a := toPlanar(c, line[i-1])
		b := toPlanar(c, line[i])
		t := projectOnSegment(p, a, b)
		q := planar{
			x: a.x + t*(b.x-a.x),
			y: a.y + t*(b.y-a.y),
		}
		d := (q.x-p.x)*(q.x-p.x) + (q.y-p.y)*(q.y-p.y)
		if d < best {
			best = d
			bestPoint = q
		}
	}

	closest = fromPlanar(c, bestPoint)
	return closest, c.DistanceTo(closest), true
}

// Calculate the total length of the line in meters
func (ca CoordinateArray) Length() float64 {
	var total float64
	for i := 1; i < len(ca); i++ {
		total += ca[i-1].DistanceTo(ca[i])
	}
	return total
}
