package flightlog

import (
	"fmt"
	"io"
	"os"

	"github.com/jxucoder/uavlog/internal/logging"
	"github.com/jxucoder/uavlog/pkg/model"
)

// Result is the outcome of parsing one log file.
type Result struct {
	Telemetry     model.Telemetry
	MessageTypes  map[string]int
	TotalMessages int
	Summary       model.Summary
}

// ParseFile opens path and parses it. See Parse.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a DataFlash log, extracts the telemetry series and computes
// the flight summary.
func Parse(r io.Reader) (*Result, error) {
	x := newExtractor()
	if err := Decode(r, x.add); err != nil {
		return nil, err
	}
	res := &Result{
		Telemetry:     x.tel,
		MessageTypes:  x.counts,
		TotalMessages: x.total,
	}
	res.Summary = Summarize(res.Telemetry, res.MessageTypes, res.TotalMessages)
	return res, nil
}

type extractor struct {
	tel    model.Telemetry
	counts map[string]int
	total  int

	// Latest EKF velocity (north, east, down), attached to POS samples.
	vel    [3]float64
	warned map[string]bool
}

func newExtractor() *extractor {
	return &extractor{
		tel:    model.NewTelemetry(),
		counts: make(map[string]int),
		warned: make(map[string]bool),
	}
}

func (x *extractor) add(m *Message) {
	x.total++
	x.counts[m.Name]++
	ts := m.Timestamp()

	switch m.Name {
	case "GPS":
		if !x.primary(m) {
			return
		}
		v, ok := x.require(m, "Status", "Lat", "Lng", "Alt")
		if !ok {
			return
		}
		hdop, ok := m.Float("HDop")
		if !ok {
			hdop, _ = m.Float("HDp")
		}
		spd, _ := m.Float("Spd")
		x.tel.GPS = append(x.tel.GPS, model.GPSPoint{
			Timestamp: ts,
			Lat:       v[1],
			Lon:       v[2],
			Alt:       v[3],
			FixType:   int(v[0]),
			HDop:      hdop,
			Speed:     spd,
		})

	case "ATT":
		v, ok := x.require(m, "Roll", "Pitch", "Yaw")
		if !ok {
			return
		}
		x.tel.Attitude = append(x.tel.Attitude, model.AttitudeSample{Timestamp: ts, Roll: v[0], Pitch: v[1], Yaw: v[2]})

	case "BAT":
		if !x.primary(m) {
			return
		}
		v, ok := x.require(m, "Volt", "Curr")
		if !ok {
			return
		}
		consumed, _ := m.Float("CurrTot")
		remaining, ok := m.Float("RemPct")
		if !ok {
			remaining = -1
		}
		x.tel.Battery = append(x.tel.Battery, model.BatterySample{
			Timestamp: ts,
			Voltage:   v[0],
			Current:   v[1],
			Consumed:  consumed,
			Remaining: remaining,
		})

	case "VIBE":
		if !x.primary(m) {
			return
		}
		v, ok := x.require(m, "VibeX", "VibeY", "VibeZ")
		if !ok {
			return
		}
		x.tel.Vibration = append(x.tel.Vibration, model.VibeSample{Timestamp: ts, VibeX: v[0], VibeY: v[1], VibeZ: v[2]})

	case "BARO":
		if !x.primary(m) {
			return
		}
		v, ok := x.require(m, "Alt", "Press", "Temp")
		if !ok {
			return
		}
		x.tel.Barometer = append(x.tel.Barometer, model.BaroSample{Timestamp: ts, Altitude: v[0], Pressure: v[1], Temperature: v[2]})

	case "MODE":
		v, ok := x.require(m, "Mode", "ModeNum")
		if !ok {
			return
		}
		x.tel.Mode = append(x.tel.Mode, model.ModeChange{Timestamp: ts, Mode: int(v[0]), ModeNum: int(v[1])})

	case "XKF1", "NKF1":
		if c, ok := m.Float("C"); ok && c != 0 {
			return
		}
		v, ok := x.require(m, "VN", "VE", "VD")
		if !ok {
			return
		}
		x.vel = [3]float64{v[0], v[1], v[2]}

	case "POS":
		v, ok := x.require(m, "Lat", "Lng", "Alt")
		if !ok {
			return
		}
		rel, _ := m.Float("RelHomeAlt")
		x.tel.Position = append(x.tel.Position, model.PositionSample{
			Timestamp:   ts,
			Lat:         v[0],
			Lon:         v[1],
			Alt:         v[2],
			RelativeAlt: rel,
			VX:          x.vel[0],
			VY:          x.vel[1],
			VZ:          x.vel[2],
		})

	case "POWR":
		v, ok := x.require(m, "Vcc")
		if !ok {
			return
		}
		vservo, _ := m.Float("VServo")
		x.tel.SystemStatus = append(x.tel.SystemStatus, model.PowerSample{Timestamp: ts, Vcc: v[0], VServo: vservo})
	}
}

// instanceColumns are the column names ArduPilot has used for a sensor
// instance index across firmware versions.
var instanceColumns = []string{"I", "Instance", "Inst", "IMU"}

// primary reports whether m belongs to the first sensor instance. Messages
// without an instance column always count.
func (x *extractor) primary(m *Message) bool {
	for _, col := range instanceColumns {
		if inst, ok := m.Float(col); ok {
			return inst == 0
		}
	}
	return true
}

// require returns the named columns in order. A missing column skips the
// message; the first such skip per message type is logged.
func (x *extractor) require(m *Message, cols ...string) ([]float64, bool) {
	vals := make([]float64, len(cols))
	for i, c := range cols {
		v, ok := m.Float(c)
		if !ok {
			if !x.warned[m.Name] {
				x.warned[m.Name] = true
				logging.Warn().Str("type", m.Name).Str("column", c).Msg("Skipping message with missing column")
			}
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}
