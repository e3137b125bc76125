package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/cli"
	"github.com/divertsy/beacon-scanner/pkg/connector"
	"github.com/divertsy/beacon-scanner/pkg/sink"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

func Usage() {
	fmt.Printf("Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Println("")
	fmt.Println("Scans for location beacons and scales until interrupted. Prints every change of the")
	fmt.Println("closest location and every scale reading, and optionally publishes readings to NATS.")
	fmt.Println("")
	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
}

// readToken reads a NATS token from the terminal without echo, or the first line of stdin.
func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "NATS token: ")
		token, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(string(token)), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		storeToken  bool
		deleteToken bool
		exportFile  string
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		writeErr("Failed to load configuration: %s", err)
		return
	}
	flag.Usage = Usage
	flag.BoolVar(&storeToken, "store-nats-token", false, "Read a NATS token from standard input, save it in the system keyring under -nats-token-name and exit")
	flag.BoolVar(&deleteToken, "delete-nats-token", false, "Remove the NATS token stored under -nats-token-name from the system keyring and exit")
	flag.StringVar(&exportFile, "export", "", "Write the tracked devices to `file` as JSON on exit")
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	if err := config.LoadFile(); err != nil {
		writeErr("Error: %s", err)
		return
	}
	if config.Debug {
		log.SetLevel(log.LevelDebug)
	}

	if storeToken {
		token, err := readToken()
		if err != nil {
			writeErr("Failed to read token: %s", err)
			return
		}
		if err := config.SaveTokenToKeyring(token); err != nil {
			writeErr("Error: %s", err)
			return
		}
		status = 0
		return
	}
	if deleteToken {
		if err := config.DeleteTokenFromKeyring(); err != nil {
			writeErr("Error: %s", err)
			return
		}
		status = 0
		return
	}

	if err := config.Validate(); err != nil {
		writeErr("Error: %s", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner, err := config.Scanner()
	if err != nil {
		if help, ok := config.AdapterErrorHelp(err); ok {
			writeErr("%s", help)
		} else {
			writeErr("Error: %s", err)
		}
		return
	}
	defer scanner.Close()

	weights, closeSink, err := config.WeightSink()
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer closeSink()

	console := sink.NewConsole(os.Stdout)
	t, err := tracker.New(config.TrackerConfig(), sink.Multi{console, weights}, console)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}

	if config.StreamsURL != "" {
		updater, err := config.Updater()
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		go func() {
			if err := updater.Update(ctx); err != nil && ctx.Err() == nil {
				log.Warning("Failed to update waste streams: %s", err)
			}
		}()
		if config.StreamsSchedule != "" {
			schedule, err := updater.Schedule(ctx, config.StreamsSchedule)
			if err != nil {
				writeErr("Error: %s", err)
				return
			}
			defer schedule.Stop()
		}
	}

	t.Start(ctx)
	log.Info("Scanning for beacons until interrupted")
	err = connector.Pump(ctx, scanner, connector.DefaultFilter, t.Submit)
	t.Stop()

	if exportFile != "" {
		if exportErr := t.ExportToFile(exportFile); exportErr != nil {
			log.Error("Failed to export devices: %s", exportErr)
		}
	}
	if err != nil && !errors.Is(err, connector.ErrScanStopped) {
		writeErr("Scan failed: %s", err)
		return
	}
	log.Info("Stopped scanning")
	status = 0
}
