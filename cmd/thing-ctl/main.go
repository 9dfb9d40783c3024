// Command thing-ctl is an interactive client for Thing servers.
//
// It connects over the framed TCP transport, discovers servers via mDNS,
// and exposes property, action and event operations as shell commands.
//
// Usage:
//
//	thing-ctl [flags]
//
// Flags:
//
//	-address string      Server address; connects at startup when set
//	-id string           Client ID (default "thing-ctl")
//	-codec string        Requested payload codec: json, cbor (default "json")
//	-thing string        Default Thing ID for commands
//	-timeout duration    Per-request timeout (default 10s)
//	-trace string        Binary protocol trace path
//	-insecure            Use TLS without certificate verification
//
// Examples:
//
//	# Discover servers, then connect from the prompt
//	thing-ctl
//
//	# Connect directly and target a Thing
//	thing-ctl -address localhost:7440 -thing spectrometer-1
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/log"
)

var flags struct {
	address  string
	clientID string
	codec    string
	thingID  string
	timeout  time.Duration
	trace    string
	insecure bool
}

func init() {
	flag.StringVar(&flags.address, "address", "", "Server address; connects at startup when set")
	flag.StringVar(&flags.clientID, "id", "thing-ctl", "Client ID")
	flag.StringVar(&flags.codec, "codec", "json", "Requested payload codec: json, cbor")
	flag.StringVar(&flags.thingID, "thing", "", "Default Thing ID for commands")
	flag.DurationVar(&flags.timeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.StringVar(&flags.trace, "trace", "", "Binary protocol trace path")
	flag.BoolVar(&flags.insecure, "insecure", false, "Use TLS without certificate verification")
}

func main() {
	flag.Parse()

	console, err := NewConsole(ConsoleConfig{
		ClientID: flags.clientID,
		Codec:    flags.codec,
		ThingID:  flags.thingID,
		Timeout:  flags.timeout,
		Insecure: flags.insecure,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start console: %v\n", err)
		os.Exit(1)
	}
	defer console.Close()

	if flags.trace != "" {
		trace, err := log.NewFileLogger(flags.trace)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open trace file: %v\n", err)
			os.Exit(1)
		}
		defer trace.Close()
		console.SetTrace(trace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.address != "" {
		if err := console.Connect(ctx, flags.address); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", flags.address, err)
			os.Exit(1)
		}
	}

	console.Run(ctx, cancel)
}
