package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"golang.org/x/term"

	"github.com/divertsy/beacon-scanner/internal/log"
	"github.com/divertsy/beacon-scanner/pkg/cli"
	"github.com/divertsy/beacon-scanner/pkg/sink"
	"github.com/divertsy/beacon-scanner/pkg/tracker"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
Decodes captured advertisements and replays them through the beacon tracker. Without a COMMAND,
commands are read from standard input, one per line.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] [COMMAND [ARG...]]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(s *session, args []string) int {
	if err := execute(s, args); err != nil {
		writeErr("Failed to execute command: %s", err)
		return 1
	}
	return 0
}

func runInteractiveShell(s *session) int {
	prompt := func() {}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		prompt = func() { fmt.Printf("> ") }
	}
	scanner := bufio.NewScanner(os.Stdin)
	status := 0
	for prompt(); scanner.Scan(); prompt() {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		if args[0] == "exit" {
			return status
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			status = 1
			continue
		}
		if runCommand(s, args) != 0 {
			status = 1
		}
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return status
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	config, err := cli.NewConfig(cli.FlagScan)
	if err != nil {
		writeErr("Failed to load configuration: %s", err)
		return
	}
	flag.Usage = Usage
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

	args := flag.Args()
	if len(args) > 0 && args[0] == "help" {
		if len(args) == 1 {
			Usage()
			status = 0
			return
		}
		info, ok := commands[args[1]]
		if !ok {
			writeErr("Unrecognized command: %s", args[1])
			return
		}
		info.Usage(args[1])
		status = 0
		return
	}

	if config.HostFilter == "" {
		// Decoding frames does not need a location filter; selection then never matches.
		config.HostFilter = "-"
	}
	if err := config.Validate(); err != nil {
		writeErr("Error: %s", err)
		return
	}
	console := sink.NewConsole(os.Stdout)
	t, err := tracker.New(config.TrackerConfig(), console, console)
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	s := newSession(t, os.Stdout, time.Now())

	if len(args) > 0 {
		status = runCommand(s, args)
	} else {
		status = runInteractiveShell(s)
	}
}
