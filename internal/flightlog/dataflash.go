// Package flightlog decodes ArduPilot DataFlash logs (binary .bin and text
// .log) and extracts the telemetry, summary, and anomalies for a flight.
package flightlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrNoMessages is returned when a file contains no decodable messages.
var ErrNoMessages = errors.New("no DataFlash messages found")

const (
	headByte1  = 0xA3
	headByte2  = 0x95
	headerLen  = 3
	fmtType    = 0x80
	fmtMsgLen  = 89
	fmtFormat  = "BBnNZ"
	fmtColumns = "Type,Length,Name,Format,Columns"
)

// fieldSize is the encoded width of each DataFlash format character.
var fieldSize = map[byte]int{
	'a': 64, 'b': 1, 'B': 1, 'h': 2, 'H': 2, 'i': 4, 'I': 4, 'f': 4, 'd': 8,
	'n': 4, 'N': 16, 'Z': 64, 'c': 2, 'C': 2, 'e': 4, 'E': 4, 'L': 4, 'M': 1,
	'q': 8, 'Q': 8,
}

// Format describes one message type, as declared by an FMT record.
type Format struct {
	Type    uint8
	Length  int // total encoded length including the 3-byte header
	Name    string
	Format  string
	Columns []string
}

func newFormat(typ uint8, length int, name, format, columns string) (*Format, error) {
	cols := splitColumns(columns)
	if len(cols) != len(format) {
		return nil, fmt.Errorf("format %s: %d columns for %d fields", name, len(cols), len(format))
	}
	size := headerLen
	for i := 0; i < len(format); i++ {
		n, ok := fieldSize[format[i]]
		if !ok {
			return nil, fmt.Errorf("format %s: unknown field type %q", name, format[i])
		}
		size += n
	}
	if length != 0 && size != length {
		return nil, fmt.Errorf("format %s: declared length %d, fields need %d", name, length, size)
	}
	return &Format{Type: typ, Length: size, Name: name, Format: format, Columns: cols}, nil
}

func splitColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// Message is one decoded log record.
type Message struct {
	Name string
	nums map[string]float64
	strs map[string]string
}

// Float returns a numeric column, scaled according to its format character.
func (m *Message) Float(col string) (float64, bool) {
	v, ok := m.nums[col]
	return v, ok
}

// String returns a string column.
func (m *Message) String(col string) (string, bool) {
	v, ok := m.strs[col]
	return v, ok
}

// Timestamp returns the message time in seconds since boot, or 0 when the
// message carries no time column.
func (m *Message) Timestamp() float64 {
	if us, ok := m.nums["TimeUS"]; ok {
		return us / 1e6
	}
	if ms, ok := m.nums["TimeMS"]; ok {
		return ms / 1e3
	}
	return 0
}

// Decode reads a DataFlash log and calls fn for every decoded message. The
// encoding (binary or text) is detected from the first bytes.
func Decode(r io.Reader, fn func(*Message)) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && len(head) == 0 {
		if err == io.EOF {
			return ErrNoMessages
		}
		return err
	}
	if len(head) == 2 && head[0] == headByte1 && head[1] == headByte2 {
		data, err := io.ReadAll(br)
		if err != nil {
			return fmt.Errorf("reading log: %w", err)
		}
		return decodeBinary(data, fn)
	}
	return decodeText(br, fn)
}

func decodeBinary(data []byte, fn func(*Message)) error {
	self, _ := newFormat(fmtType, fmtMsgLen, "FMT", fmtFormat, fmtColumns)
	formats := map[uint8]*Format{fmtType: self}

	decoded := 0
	for i := 0; i+headerLen <= len(data); {
		if data[i] != headByte1 || data[i+1] != headByte2 {
			i++
			continue
		}
		f := formats[data[i+2]]
		if f == nil || i+f.Length > len(data) {
			i++
			continue
		}
		msg := f.decode(data[i+headerLen : i+f.Length])
		if f.Type == fmtType {
			if nf, err := formatFromFMT(msg); err == nil {
				formats[nf.Type] = nf
			}
		}
		fn(msg)
		decoded++
		i += f.Length
	}
	if decoded == 0 {
		return ErrNoMessages
	}
	return nil
}

func formatFromFMT(m *Message) (*Format, error) {
	typ, _ := m.Float("Type")
	length, _ := m.Float("Length")
	name, _ := m.String("Name")
	format, _ := m.String("Format")
	columns, _ := m.String("Columns")
	return newFormat(uint8(typ), int(length), name, format, columns)
}

func (f *Format) decode(p []byte) *Message {
	m := &Message{
		Name: f.Name,
		nums: make(map[string]float64, len(f.Columns)),
	}
	le := binary.LittleEndian
	off := 0
	for i := 0; i < len(f.Format); i++ {
		c := f.Format[i]
		col := f.Columns[i]
		b := p[off : off+fieldSize[c]]
		switch c {
		case 'b':
			m.nums[col] = float64(int8(b[0]))
		case 'B', 'M':
			m.nums[col] = float64(b[0])
		case 'h':
			m.nums[col] = float64(int16(le.Uint16(b)))
		case 'H':
			m.nums[col] = float64(le.Uint16(b))
		case 'i':
			m.nums[col] = float64(int32(le.Uint32(b)))
		case 'I':
			m.nums[col] = float64(le.Uint32(b))
		case 'f':
			m.nums[col] = float64(math.Float32frombits(le.Uint32(b)))
		case 'd':
			m.nums[col] = math.Float64frombits(le.Uint64(b))
		case 'c':
			m.nums[col] = float64(int16(le.Uint16(b))) * 0.01
		case 'C':
			m.nums[col] = float64(le.Uint16(b)) * 0.01
		case 'e':
			m.nums[col] = float64(int32(le.Uint32(b))) * 0.01
		case 'E':
			m.nums[col] = float64(le.Uint32(b)) * 0.01
		case 'L':
			m.nums[col] = float64(int32(le.Uint32(b))) * 1e-7
		case 'q':
			m.nums[col] = float64(int64(le.Uint64(b)))
		case 'Q':
			m.nums[col] = float64(le.Uint64(b))
		case 'n', 'N', 'Z':
			if m.strs == nil {
				m.strs = make(map[string]string)
			}
			m.strs[col] = string(bytes.TrimRight(b, "\x00"))
		case 'a':
			// int16[32] arrays carry no telemetry we extract.
		}
		off += len(b)
	}
	return m
}

// decodeText handles the text form, where each line is
// "NAME, v1, v2, ..." and values are already scaled.
func decodeText(r io.Reader, fn func(*Message)) error {
	formats := make(map[string]*Format)
	decoded := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		name := fields[0]
		if name == "" {
			continue
		}

		if name == "FMT" {
			// FMT, type, length, name, format, col1,col2,...
			if len(fields) < 6 {
				continue
			}
			typ, err1 := strconv.Atoi(fields[1])
			length, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil {
				continue
			}
			f, err := newFormat(uint8(typ), 0, fields[3], fields[4], strings.Join(fields[5:], ","))
			if err != nil {
				continue
			}
			formats[f.Name] = f
			fn(&Message{
				Name: "FMT",
				nums: map[string]float64{"Type": float64(typ), "Length": float64(length)},
				strs: map[string]string{"Name": f.Name, "Format": f.Format, "Columns": strings.Join(f.Columns, ",")},
			})
			decoded++
			continue
		}

		f := formats[name]
		if f == nil || len(fields)-1 != len(f.Columns) {
			continue
		}
		m := &Message{Name: name, nums: make(map[string]float64, len(f.Columns))}
		for i, col := range f.Columns {
			raw := fields[i+1]
			switch f.Format[i] {
			case 'n', 'N', 'Z':
				if m.strs == nil {
					m.strs = make(map[string]string)
				}
				m.strs[col] = raw
			case 'a':
			default:
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					m.nums[col] = v
				}
			}
		}
		fn(m)
		decoded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading log: %w", err)
	}
	if decoded == 0 {
		return ErrNoMessages
	}
	return nil
}
