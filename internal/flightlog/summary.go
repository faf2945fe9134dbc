package flightlog

import (
	"math"

	"github.com/jxucoder/uavlog/pkg/model"
)

// Anomaly descriptions, as shown to users and matched by the chat memory.
const (
	AnomalyGPS       = "GPS signal instability detected"
	AnomalyVibration = "High vibration levels detected"
	AnomalyBattery   = "Low battery voltage detected"
	AnomalyAltitude  = "Sudden altitude drop detected"
)

const (
	minGoodFix         = 3
	poorGPSRatio       = 0.10
	vibeLimit          = 30.0
	highVibeRatio      = 0.05
	lowVoltage         = 3.3
	minAltitudePoints  = 10
	suddenAltitudeDrop = 5.0
	earthRadiusM       = 6371000.0
)

// Summarize derives the flight statistics and anomalies from the
// telemetry.
func Summarize(t model.Telemetry, messageTypes map[string]int, total int) model.Summary {
	s := model.Summary{
		Anomalies:     DetectAnomalies(t),
		MessageStats:  messageTypes,
		TotalMessages: total,
	}
	if s.MessageStats == nil {
		s.MessageStats = map[string]int{}
	}

	track := altitudeTrack(t)
	if len(track) > 0 {
		s.Duration = track[len(track)-1].ts - track[0].ts
		for _, p := range track {
			s.MaxAltitude = math.Max(s.MaxAltitude, p.alt)
		}
	}

	if len(t.Position) > 0 {
		for _, p := range t.Position {
			s.MaxSpeed = math.Max(s.MaxSpeed, math.Sqrt(p.VX*p.VX+p.VY*p.VY+p.VZ*p.VZ))
		}
	}
	if s.MaxSpeed == 0 {
		for _, g := range t.GPS {
			s.MaxSpeed = math.Max(s.MaxSpeed, g.Speed)
		}
	}

	if n := len(t.Battery); n > 0 {
		first, last := t.Battery[0].Remaining, t.Battery[n-1].Remaining
		if first >= 0 && last >= 0 {
			s.BatteryUsage = first - last
		}
	}

	s.TotalDistance = trackDistance(t.GPS)
	return s
}

// DetectAnomalies applies the fixed anomaly rules to the telemetry.
func DetectAnomalies(t model.Telemetry) []string {
	anomalies := []string{}

	if n := len(t.GPS); n > 0 {
		poor := 0
		for _, g := range t.GPS {
			if g.FixType < minGoodFix {
				poor++
			}
		}
		if float64(poor) > float64(n)*poorGPSRatio {
			anomalies = append(anomalies, AnomalyGPS)
		}
	}

	if n := len(t.Vibration); n > 0 {
		high := 0
		for _, v := range t.Vibration {
			if v.VibeX > vibeLimit || v.VibeY > vibeLimit {
				high++
			}
		}
		if float64(high) > float64(n)*highVibeRatio {
			anomalies = append(anomalies, AnomalyVibration)
		}
	}

	for _, b := range t.Battery {
		if b.Voltage < lowVoltage {
			anomalies = append(anomalies, AnomalyBattery)
			break
		}
	}

	if track := altitudeTrack(t); len(track) > minAltitudePoints {
		for i := 1; i < len(track); i++ {
			if track[i-1].alt-track[i].alt > suddenAltitudeDrop {
				anomalies = append(anomalies, AnomalyAltitude)
				break
			}
		}
	}
	return anomalies
}

type trackPoint struct{ ts, alt float64 }

// altitudeTrack prefers the EKF position series and falls back to GPS.
func altitudeTrack(t model.Telemetry) []trackPoint {
	var pts []trackPoint
	if len(t.Position) > 0 {
		pts = make([]trackPoint, len(t.Position))
		for i, p := range t.Position {
			pts[i] = trackPoint{p.Timestamp, p.Alt}
		}
		return pts
	}
	pts = make([]trackPoint, len(t.GPS))
	for i, g := range t.GPS {
		pts[i] = trackPoint{g.Timestamp, g.Alt}
	}
	return pts
}

// trackDistance sums great-circle distances between consecutive GPS points
// that have a 3D fix.
func trackDistance(gps []model.GPSPoint) float64 {
	var total float64
	var prev *model.GPSPoint
	for i := range gps {
		g := &gps[i]
		if g.FixType < minGoodFix {
			continue
		}
		if prev != nil {
			total += haversine(prev.Lat, prev.Lon, g.Lat, g.Lon)
		}
		prev = g
	}
	return total
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
