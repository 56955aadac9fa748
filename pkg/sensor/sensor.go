package sensor

import (
	"strings"
	"time"
)

// Canonical field names of a Reading.
const (
	FieldPM25Standard   = "pm25 standard"
	FieldPM100Standard  = "pm100 standard"
	FieldParticles25um  = "particles 25um"
	FieldParticles100um = "particles 100um"
	FieldRawOut1        = "raw out1"
	FieldRawOut2        = "raw out2"
)

// FieldNames lists every field a Reading carries.
var FieldNames = []string{
	FieldPM25Standard,
	FieldPM100Standard,
	FieldParticles25um,
	FieldParticles100um,
	FieldRawOut1,
	FieldRawOut2,
}

// Reading is one snapshot of the sensor. Each field is nil until computed.
// Only RawOut1 and RawOut2 (particles per second on OUT1/OUT2) are ever set;
// the calibrated fields are reserved and stay nil, which is not an error.
type Reading struct {
	PM25Standard   *float64  `json:"pm25_standard"`
	PM100Standard  *float64  `json:"pm100_standard"`
	Particles25um  *float64  `json:"particles_25um"`
	Particles100um *float64  `json:"particles_100um"`
	RawOut1        *float64  `json:"raw_out1"`
	RawOut2        *float64  `json:"raw_out2"`
	Overflows      uint64    `json:"overflows"`
	Timestamp      time.Time `json:"timestamp"`
}

// Field returns the value stored under one of FieldNames. ok is false for an
// unknown name.
func (r Reading) Field(name string) (v *float64, ok bool) {
	switch name {
	case FieldPM25Standard:
		return r.PM25Standard, true
	case FieldPM100Standard:
		return r.PM100Standard, true
	case FieldParticles25um:
		return r.Particles25um, true
	case FieldParticles100um:
		return r.Particles100um, true
	case FieldRawOut1:
		return r.RawOut1, true
	case FieldRawOut2:
		return r.RawOut2, true
	}
	return nil, false
}

// Fields maps every name in FieldNames to its value.
func (r Reading) Fields() map[string]*float64 {
	out := make(map[string]*float64, len(FieldNames))
	for _, name := range FieldNames {
		out[name], _ = r.Field(name)
	}
	return out
}

// Clone returns a copy that shares no pointers with r.
func (r Reading) Clone() Reading {
	c := r
	c.PM25Standard = clonePtr(r.PM25Standard)
	c.PM100Standard = clonePtr(r.PM100Standard)
	c.Particles25um = clonePtr(r.Particles25um)
	c.Particles100um = clonePtr(r.Particles100um)
	c.RawOut1 = clonePtr(r.RawOut1)
	c.RawOut2 = clonePtr(r.RawOut2)
	return c
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

type Sensor interface {
	Read() Reading
	Close() error
}

// FieldKey turns a field name into the snake_case key used in JSON payloads
// and metric labels, e.g. "raw out1" -> "raw_out1".
func FieldKey(name string) string {
	return strings.ReplaceAll(name, " ", "_")
}
