package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/divertsy/beacon-scanner/pkg/connector"
	"github.com/divertsy/beacon-scanner/pkg/frame"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrInvalidHex      = errors.New("invalid hex")
)

type Argument struct {
	name string
	help string
}

// session is the state shared by the commands of one invocation. Timestamps given to commands
// are milliseconds relative to start.
type session struct {
	tracker *tracker.Tracker
	out     io.Writer
	start   time.Time
	now     time.Time
}

func newSession(t *tracker.Tracker, out io.Writer, start time.Time) *session {
	return &session{tracker: t, out: out, start: start, now: start}
}

// at returns the time named by a millisecond offset, or the latest time used so far if ms is
// empty. The session clock never moves backwards.
func (s *session) at(ms string) (time.Time, error) {
	if ms == "" {
		return s.now, nil
	}
	offset, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || offset < 0 {
		return time.Time{}, fmt.Errorf("%w: invalid millisecond offset '%s'", ErrCommandLineArgs, ms)
	}
	t := s.start.Add(time.Duration(offset) * time.Millisecond)
	if t.After(s.now) {
		s.now = t
	}
	return t, nil
}

type Handler func(s *session, args map[string]string) error

type Command struct {
	help     string
	args     []Argument
	optional []Argument
	handler  Handler
}

// ParseHex decodes a byte string written as plain hex digits, optionally separated by colons,
// dashes or spaces, with an optional 0x prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	s = strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHex, err)
	}
	return data, nil
}

func describeFrame(f frame.Frame) string {
	switch v := f.(type) {
	case *frame.URLFrame:
		return fmt.Sprintf("URL frame: %s (host %s, tx power %d dBm)", v.URL, v.Host, v.TxPower)
	case *frame.UIDFrame:
		return fmt.Sprintf("UID frame: namespace %s instance %s (tx power %d dBm)", v.NamespaceHex(), v.InstanceHex(), v.TxPower)
	case *frame.TLMFrame:
		return fmt.Sprintf("TLM frame: battery %d mV, temperature %.2f C, %d PDUs, uptime %s",
			v.BatteryMV, v.Temperature, v.PDUCount, v.Uptime())
	}
	return fmt.Sprintf("frame type %02X", f.Type())
}

func execute(s *session, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(s, keywords)
	}

	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var hexArgHelp = "Bytes as hex digits, e.g. 10eb0268617800"

var commands = map[string]*Command{
	"frame": &Command{
		help: "Decode Eddystone service data",
		args: []Argument{
			{name: "HEX", help: hexArgHelp},
		},
		handler: func(s *session, args map[string]string) error {
			data, err := ParseHex(args["HEX"])
			if err != nil {
				return err
			}
			f, err := frame.DecodeFrame(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, describeFrame(f))
			return nil
		},
	},
	"weight": &Command{
		help: "Decode a raw scale advertisement record",
		args: []Argument{
			{name: "HEX", help: hexArgHelp},
		},
		optional: []Argument{
			{name: "NAME", help: "Advertised name of the scale"},
		},
		handler: func(s *session, args map[string]string) error {
			record, err := ParseHex(args["HEX"])
			if err != nil {
				return err
			}
			reading, err := frame.DecodeWeightFrame(record, args["NAME"])
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "weight: %s (value %g, negative %t)\n", reading, reading.Value, reading.Negative)
			return nil
		},
	},
	"observe": &Command{
		help: "Feed Eddystone service data from a device to the tracker",
		args: []Argument{
			{name: "ADDR", help: "Device address"},
			{name: "RSSI", help: "Received signal strength in dBm"},
			{name: "HEX", help: hexArgHelp},
		},
		optional: []Argument{
			{name: "MS", help: "Receive time in milliseconds since the session started (defaults to the latest time used)"},
		},
		handler: func(s *session, args map[string]string) error {
			rssi, err := strconv.Atoi(args["RSSI"])
			if err != nil {
				return fmt.Errorf("%w: invalid RSSI '%s'", ErrCommandLineArgs, args["RSSI"])
			}
			data, err := ParseHex(args["HEX"])
			if err != nil {
				return err
			}
			now, err := s.at(args["MS"])
			if err != nil {
				return err
			}
			s.tracker.Process(connector.Advertisement{
				Address:     args["ADDR"],
				RSSI:        rssi,
				ServiceData: []connector.ServiceData{{UUID: connector.EddystoneServiceUUID, Data: data}},
				Received:    now,
			}, now)
			return nil
		},
	},
	"sweep": &Command{
		help: "Evict devices that have not been seen within the timeout",
		optional: []Argument{
			{name: "MS", help: "Current time in milliseconds since the session started"},
		},
		handler: func(s *session, args map[string]string) error {
			now, err := s.at(args["MS"])
			if err != nil {
				return err
			}
			s.tracker.Sweep(now)
			return nil
		},
	},
	"closest": &Command{
		help: "Print the closest location",
		handler: func(s *session, args map[string]string) error {
			closest := s.tracker.Closest()
			if closest == nil {
				fmt.Fprintln(s.out, "none")
				return nil
			}
			fmt.Fprintf(s.out, "%s (%s, %d dBm)\n", closest.URL.URL, closest.Address, closest.RSSI)
			return nil
		},
	},
	"dump": &Command{
		help: "Print every tracked device as JSON",
		handler: func(s *session, args map[string]string) error {
			return s.tracker.Export(s.out)
		},
	},
}
