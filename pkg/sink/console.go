package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/registry"
)

// Console prints readings and changes as coloured lines, one per event.
type Console struct {
	out  io.Writer
	lock sync.Mutex

	location *color.Color
	none     *color.Color
	weight   *color.Color
	negative *color.Color
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out:      out,
		location: color.New(color.FgGreen, color.Bold),
		none:     color.New(color.FgYellow),
		weight:   color.New(color.FgCyan),
		negative: color.New(color.FgRed),
	}
}

func (c *Console) OnClosestChanged(closest *registry.Device) {
	c.lock.Lock()
	defer c.lock.Unlock()
	stamp := time.Now().Format(time.TimeOnly)
	if closest == nil {
		c.none.Fprintf(c.out, "%s  closest: none\n", stamp)
		return
	}
	c.location.Fprintf(c.out, "%s  closest: %s", stamp, closest.URL.URL)
	fmt.Fprintf(c.out, " (%s, %d dBm)\n", closest.Address, closest.RSSI)
}

func (c *Console) PublishWeight(reading frame.WeightReading) {
	c.lock.Lock()
	defer c.lock.Unlock()
	stamp := time.Now().Format(time.TimeOnly)
	style := c.weight
	if reading.Negative {
		style = c.negative
	}
	style.Fprintf(c.out, "%s  weight: %s", stamp, reading)
	if reading.Device != "" {
		fmt.Fprintf(c.out, " [%s]", reading.Device)
	}
	fmt.Fprintln(c.out)
}
