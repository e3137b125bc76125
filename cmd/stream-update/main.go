package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/cli"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		timeout  time.Duration
		printDoc bool
	)
	config, err := cli.NewConfig(cli.FlagStreams)
	if err != nil {
		writeErr("Failed to load configuration: %s", err)
		return
	}
	flag.DurationVar(&timeout, "fetch-timeout", time.Minute, "Give up on a single update after `duration`")
	flag.BoolVar(&printDoc, "print", false, "Print the stored document after a successful update")
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
	if err := config.Validate(); err != nil {
		writeErr("Error: %s", err)
		return
	}
	updater, err := config.Updater()
	if err != nil {
		writeErr("Error: %s", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.StreamsSchedule != "" {
		schedule, err := updater.Schedule(ctx, config.StreamsSchedule)
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		log.Info("Updating %s on schedule %q until interrupted", updater.Name, config.StreamsSchedule)
		<-ctx.Done()
		schedule.Stop()
		status = 0
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := updater.Update(fetchCtx); err != nil {
		writeErr("Failed to update waste streams: %s", err)
		return
	}
	if printDoc {
		text, err := updater.Load()
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		fmt.Print(text)
	}
	status = 0
}
