package domain

import (
	"math"
	"strconv"
)

// sixteen-point rose, 22.5° per sector
var compassNames = [16]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

// Compass returns the cardinal name for a wind vane angle in degrees.
func Compass(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(math.Round(deg/22.5)) % len(compassNames)
	return compassNames[idx]
}

func formatAngle(deg float64) string {
	return strconv.FormatFloat(deg, 'f', 1, 64) + "°"
}
