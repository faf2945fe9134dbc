// Package model defines the shared data types for uavlog: parsed flights,
// chat payloads, conversation memory records, and events.
package model

import "time"

// Flight is a fully parsed flight log.
type Flight struct {
	ID            string         `json:"flight_id"`
	FileName      string         `json:"file_name"`
	FilePath      string         `json:"file_path"`
	UploadedAt    time.Time      `json:"uploaded_at"`
	Summary       Summary        `json:"summary"`
	Telemetry     Telemetry      `json:"telemetry"`
	MessageTypes  map[string]int `json:"message_types"`
	TotalMessages int            `json:"total_messages"`
}

// Summary holds the derived statistics for a flight.
type Summary struct {
	Duration      float64        `json:"duration"`       // seconds
	MaxAltitude   float64        `json:"max_altitude"`   // meters
	MaxSpeed      float64        `json:"max_speed"`      // m/s
	TotalDistance float64        `json:"total_distance"` // meters
	BatteryUsage  float64        `json:"battery_usage"`  // percent
	Anomalies     []string       `json:"anomalies"`
	MessageStats  map[string]int `json:"message_stats"`
	TotalMessages int            `json:"total_messages"`
}

// FlightSummary is the list view of a flight.
type FlightSummary struct {
	ID         string    `json:"flight_id"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
	Summary    Summary   `json:"summary"`
}

// Telemetry groups the extracted time series. All timestamps are seconds
// since boot.
type Telemetry struct {
	GPS          []GPSPoint       `json:"gps"`
	Attitude     []AttitudeSample `json:"attitude"`
	Battery      []BatterySample  `json:"battery"`
	Vibration    []VibeSample     `json:"vibration"`
	Position     []PositionSample `json:"position"`
	SystemStatus []PowerSample    `json:"system_status"`
	Barometer    []BaroSample     `json:"barometer"`
	Mode         []ModeChange     `json:"mode"`
}

// NewTelemetry returns a Telemetry with every series non-nil, so empty
// series encode as [] rather than null.
func NewTelemetry() Telemetry {
	return Telemetry{
		GPS:          []GPSPoint{},
		Attitude:     []AttitudeSample{},
		Battery:      []BatterySample{},
		Vibration:    []VibeSample{},
		Position:     []PositionSample{},
		SystemStatus: []PowerSample{},
		Barometer:    []BaroSample{},
		Mode:         []ModeChange{},
	}
}

type GPSPoint struct {
	Timestamp float64 `json:"timestamp"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Alt       float64 `json:"alt"`
	FixType   int     `json:"fix_type"`
	HDop      float64 `json:"hdop"`
	Speed     float64 `json:"speed"`
}

type AttitudeSample struct {
	Timestamp float64 `json:"timestamp"`
	Roll      float64 `json:"roll"`
	Pitch     float64 `json:"pitch"`
	Yaw       float64 `json:"yaw"`
}

type BatterySample struct {
	Timestamp float64 `json:"timestamp"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Consumed  float64 `json:"consumed"`  // mAh
	Remaining float64 `json:"remaining"` // percent, -1 when the log has no RemPct
}

type VibeSample struct {
	Timestamp float64 `json:"timestamp"`
	VibeX     float64 `json:"vibe_x"`
	VibeY     float64 `json:"vibe_y"`
	VibeZ     float64 `json:"vibe_z"`
}

type PositionSample struct {
	Timestamp   float64 `json:"timestamp"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Alt         float64 `json:"alt"`
	RelativeAlt float64 `json:"relative_alt"`
	VX          float64 `json:"vx"`
	VY          float64 `json:"vy"`
	VZ          float64 `json:"vz"`
}

type PowerSample struct {
	Timestamp float64 `json:"timestamp"`
	Vcc       float64 `json:"vcc"`
	VServo    float64 `json:"vservo"`
}

type BaroSample struct {
	Timestamp   float64 `json:"timestamp"`
	Altitude    float64 `json:"altitude"`
	Pressure    float64 `json:"pressure"`
	Temperature float64 `json:"temperature"`
}

type ModeChange struct {
	Timestamp float64 `json:"timestamp"`
	Mode      int     `json:"mode"`
	ModeNum   int     `json:"mode_num"`
}
