package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ericogr/b5wld0101-to-mqtt/pkg/output"
	"github.com/ericogr/b5wld0101-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

// Publish prints one line per reading with every computed field.
func (c *ConsoleOutput) Publish(r sensor.Reading) error {
	var b strings.Builder
	b.WriteString(r.Timestamp.Format(time.RFC3339))
	for _, name := range sensor.FieldNames {
		v, _ := r.Field(name)
		if v == nil {
			continue
		}
		fmt.Fprintf(&b, " %s=%.3f", sensor.FieldKey(name), *v)
	}
	fmt.Fprintf(&b, " overflows=%d\n", r.Overflows)
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
