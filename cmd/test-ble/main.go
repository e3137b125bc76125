package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/cli"
	"github.com/divertsy/beacon-scanner/pkg/connector"
)

var (
	testScan = flag.Bool("testScan", false, "Also test BLE scan")
	all      = flag.Bool("all", false, "Print every advertisement, not only beacons and scales")
)

func describe(a *connector.Advertisement) string {
	line := fmt.Sprintf("%s %4d dBm", a.Address, a.RSSI)
	if a.LocalName != "" {
		line += fmt.Sprintf(" name=%q", a.LocalName)
	}
	for _, sd := range a.ServiceData {
		line += fmt.Sprintf(" %04x=%s", sd.UUID, hex.EncodeToString(sd.Data))
	}
	if len(a.Record) > 0 {
		line += " record=" + hex.EncodeToString(a.Record)
	}
	return line
}

func main() {
	config, err := cli.NewConfig(cli.FlagScan)
	if err != nil {
		log.Error("Failed to load configuration: %s", err)
		os.Exit(1)
	}
	config.RegisterCommandLineFlags()
	flag.Parse()
	config.ReadFromEnvironment()
	log.SetLevel(log.LevelDebug)

	if config.BtAdapterID != "" {
		log.Info("Trying to use BLE adapter: %s", config.BtAdapterID)
	} else {
		log.Info("Using first available BLE device")
	}
	scanner, err := config.Scanner()
	if err != nil {
		if help, ok := config.AdapterErrorHelp(err); ok {
			log.Error("%s", help)
		} else {
			log.Error("Failed to initialize BLE device: %v", err)
		}
		os.Exit(1)
	}
	defer scanner.Close()

	log.Info("BLE adapter initialized")

	if !*testScan {
		return
	}

	filter := connector.DefaultFilter
	if *all {
		filter = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	doneChan := make(chan struct{})
	go func() {
		err := connector.Pump(ctx, scanner, filter, func(a connector.Advertisement) bool {
			fmt.Println(describe(&a))
			return true
		})
		if err != nil && ctx.Err() == nil {
			log.Error("Scan failed: %v", err)
		}
		close(doneChan)
	}()
	log.Info("Scanning for BLE devices until interrupted")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	select {
	case <-signalChan:
	case <-doneChan:
	}
	log.Info("Stopping scan")
	cancel()
	<-doneChan
}
