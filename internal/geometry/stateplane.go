package geometry

// State-plane Lambert Conformal Conic (US-feet, NAD83) → WGS-84 inverse
// projection. The county parcel shapefiles ship in the state-plane CRS;
// everything downstream of the geo reader works in lat/lon, so this is
// the single reprojection point for the whole pipeline.

import "math"

const (
	spFalseEasting  = 1968500.0
	spFalseNorthing = 6561666.666666666
	phi0Deg         = 31.66666666666667 // latitude of origin
	phi1Deg         = 32.13333333333333 // standard parallel 1
	phi2Deg         = 33.96666666666667 // standard parallel 2
	lon0Deg         = -98.5             // central meridian

	ftPerMeter = 3.2808333333333334 // US survey foot
	semiMajorM = 6378137.0          // NAD83 semi-major axis (metres)
	e2         = 0.00669438002290   // NAD83 eccentricity squared
)

var (
	lccN    float64
	lccF    float64
	lccRho0 float64
)

func init() {
	phi1 := phi1Deg * math.Pi / 180
	phi2 := phi2Deg * math.Pi / 180
	phi0 := phi0Deg * math.Pi / 180

	m := func(phi float64) float64 {
		return math.Cos(phi) / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi))
	}

	t := func(phi float64) float64 {
		e := math.Sqrt(e2)
		return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*math.Sin(phi))/(1+e*math.Sin(phi)), e/2)
	}

	m1 := m(phi1)
	m2 := m(phi2)
	t1 := t(phi1)
	t2 := t(phi2)
	t0 := t(phi0)

	lccN = math.Log(m1/m2) / math.Log(t1/t2)

	aFt := semiMajorM * ftPerMeter
	lccF = aFt * m1 / (lccN * math.Pow(t1, lccN))
	lccRho0 = lccF * math.Pow(t0, lccN)
}

// StatePlaneToWGS84 converts state-plane easting/northing in US-feet to
// (longitude, latitude) decimal degrees. The latitude solution iterates
// the standard series; four passes converge well below coordinate
// precision.
func StatePlaneToWGS84(eastingFt, northingFt float64) (lonDeg, latDeg float64) {
	x := eastingFt - spFalseEasting
	y := lccRho0 - (northingFt - spFalseNorthing)

	rho := math.Sqrt(x*x + y*y)
	if lccN < 0 {
		rho = -rho
	}
	theta := math.Atan2(x, y)

	t := math.Pow(rho/lccF, 1/lccN)
	e := math.Sqrt(e2)

	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 4; i++ {
		sinPhi := math.Sin(phi)
		phi = math.Pi/2 - 2*math.Atan(t*math.Pow((1-e*sinPhi)/(1+e*sinPhi), e/2))
	}

	lambda0 := lon0Deg * math.Pi / 180
	lambda := theta/lccN + lambda0

	return lambda * 180 / math.Pi, phi * 180 / math.Pi
}

// ReprojectRing converts a ring in place from state-plane feet to WGS84
// lon/lat.
func ReprojectRing(r Ring) {
	for i := range r {
		lon, lat := StatePlaneToWGS84(r[i].X, r[i].Y)
		r[i].X = lon
		r[i].Y = lat
	}
}
