// Package geofence tests whether a location falls inside configured
// geographic boundaries, either polygonal or circular.
package geofence

import (
	"fmt"
	"math"

	"geogate/internal/models"
)

// earthRadiusMeters is the mean Earth radius used for great-circle
// distances.
const earthRadiusMeters = 6371000

const (
	ReasonNoLocation  = "No location provided"
	ReasonNoGeofence  = "no geofence configured"
	ReasonOutsideAll  = "outside all geofences"
	ReasonInsideRing  = "inside polygon"
	ReasonOutsideRing = "outside polygon"
)

// Evaluate tests whether (lat, lon) is inside the fence. A fence with a
// polygon is tested by ray casting; a fence with a center and radius by
// haversine distance. A fence with neither shape is treated as no
// geofence, which allows.
func Evaluate(fence models.Geofence, lat, lon *float64) (bool, string) {
	if lat == nil || lon == nil {
		return false, ReasonNoLocation
	}

	if fence.Polygon != nil {
		// A malformed or degenerate polygon has a nil/short ring and reads
		// as outside rather than falling through to permissive.
		if inside := rayCast(*lat, *lon, fence.Polygon.OuterRing()); inside {
			return true, ReasonInsideRing
		}
		return false, ReasonOutsideRing
	}

	if fence.CenterLat != nil && fence.CenterLon != nil && fence.RadiusMeters != nil {
		distance := Haversine(*lat, *lon, *fence.CenterLat, *fence.CenterLon)
		if distance <= *fence.RadiusMeters {
			return true, fmt.Sprintf("within %gm", *fence.RadiusMeters)
		}
		return false, fmt.Sprintf("outside %gm radius", *fence.RadiusMeters)
	}

	return true, ReasonNoGeofence
}

// EvaluateAll tests the location against every fence and reports inside if
// it is inside ANY of them, short-circuiting on the first hit. With no
// location it reports outside regardless of the fence set.
func EvaluateAll(fences []models.Geofence, lat, lon *float64) (bool, string) {
	if lat == nil || lon == nil {
		return false, ReasonNoLocation
	}

	for _, fence := range fences {
		if inside, reason := Evaluate(fence, lat, lon); inside {
			return true, reason
		}
	}
	return false, ReasonOutsideAll
}

// rayCast runs the standard even-odd crossing test against a single ring
// of [longitude, latitude] vertices. Concave rings work; a ring with fewer
// than three vertices is degenerate and reads as outside. The closing
// vertex duplicating the first is harmless: a zero-length edge crosses no
// ray.
func rayCast(lat, lon float64, ring [][]float64) bool {
	if len(ring) < 3 {
		return false
	}

	x, y := lon, lat
	inside := false

	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			return false
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}

	return inside
}

// Haversine returns the great-circle distance in meters between two
// points. Identical points yield exactly zero.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := radians(lat1)
	phi2 := radians(lat2)
	deltaPhi := radians(lat2 - lat1)
	deltaLambda := radians(lon2 - lon1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
