package analog

import (
	"fmt"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	defaultSampleRate = 128
	pgaFullScale      = 4.096
)

// ADS1115 reads one single-ended channel of an ADS1115 ADC in single-shot mode.
type ADS1115 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	channel    int
	sampleRate int
	scale      float64
	offset     float64
}

// OpenADS1115 opens the I2C bus named in cfg. periph host.Init must have run.
func OpenADS1115(cfg config.VthConfig) (*ADS1115, error) {
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	a, err := NewADS1115(bus, uint16(cfg.I2CAddress), cfg.Channel, cfg.SampleRate)
	if err != nil {
		bus.Close()
		return nil, err
	}
	a.bus = bus
	a.scale = cfg.CalibrationScale
	a.offset = cfg.CalibrationOffset
	return a, nil
}

// NewADS1115 uses an already opened bus; Close leaves it open.
func NewADS1115(bus i2c.Bus, addr uint16, channel, sampleRate int) (*ADS1115, error) {
	if channel < 0 || channel > 3 {
		return nil, fmt.Errorf("invalid channel %d", channel)
	}
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &ADS1115{dev: &i2c.Dev{Addr: addr, Bus: bus}, channel: channel, sampleRate: sampleRate, scale: 1.0}, nil
}

func (a *ADS1115) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}

// Read starts a conversion, waits for it and returns the calibrated voltage.
func (a *ADS1115) Read() (float64, error) {
	msb, lsb, err := a.configForChannel(a.channel, a.sampleRate)
	if err != nil {
		return 0, err
	}
	if err := a.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	delayMs := int(1000.0/float64(a.sampleRate)) + 2
	time.Sleep(time.Duration(delayMs) * time.Millisecond)
	readBuf := make([]byte, 2)
	if err := a.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return float64(raw)*pgaFullScale/32768.0*a.scale + a.offset, nil
}

func (a *ADS1115) configForChannel(channel, sampleRate int) (byte, byte, error) {
	if channel < 0 || channel > 3 {
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// single-ended AINx vs GND
	mux := byte(0x4 + channel)
	// PGA: ±4.096V -> bits 001
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var cfg uint16 = 0x8000 // OS = 1 (start single conversion)
	cfg |= uint16(mux) << 12
	cfg |= uint16(pga) << 9
	cfg |= 1 << 8 // single-shot mode
	cfg |= uint16(dr) << 5
	// comparator disabled (bits 1:0 = 11)
	cfg |= 0x3
	return byte(cfg >> 8), byte(cfg & 0xFF), nil
}
