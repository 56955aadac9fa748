package output

import "github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"

type Output interface {
	Publish(sensor.Reading) error
	Close() error
}

// helper constructors are in subpackages
