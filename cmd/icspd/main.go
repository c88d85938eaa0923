package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmcnally/icsp-bridge/internal/dispatch"
	"github.com/tmcnally/icsp-bridge/internal/gpio"
	"github.com/tmcnally/icsp-bridge/internal/heartbeat"
	"github.com/tmcnally/icsp-bridge/internal/icsp"
	"github.com/tmcnally/icsp-bridge/internal/serial"
	"github.com/tmcnally/icsp-bridge/internal/signal"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag      string
	baudFlag      int
	stdioFlag     bool
	dryRunFlag    bool
	heartbeatFlag bool
	clockPinFlag  string
	dataPinFlag   string
	progPinFlag   string
	resetPinFlag  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "icspd",
		Short: "In-circuit programming adapter daemon",
		Long: `icspd turns this machine into a microcontroller-programming adapter:
it reads single-byte commands from a serial link and bit-bangs the
four-wire in-circuit programming protocol on GPIO lines wired to the
target's programming header.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command dispatcher",
		Long: `Run the command loop until the link closes.

The four programming lines are driven through the named GPIO pins.
With --dry-run no hardware is touched: every line access is printed
to stderr instead, which is useful for checking command sequences.`,
		RunE: runServe,
	}
	serveCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port to listen on")
	serveCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	serveCmd.Flags().BoolVar(&stdioFlag, "stdio", false, "Use stdin/stdout instead of a serial port")
	serveCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Trace line accesses instead of driving GPIO")
	serveCmd.Flags().BoolVar(&heartbeatFlag, "heartbeat", false, "Enable the background liveness counter")
	serveCmd.Flags().StringVar(&clockPinFlag, "clock-pin", "GPIO4", "GPIO pin for the clock line")
	serveCmd.Flags().StringVar(&dataPinFlag, "data-pin", "GPIO17", "GPIO pin for the data line")
	serveCmd.Flags().StringVar(&progPinFlag, "prog-pin", "GPIO22", "GPIO pin for the programming-voltage enable line")
	serveCmd.Flags().StringVar(&resetPinFlag, "reset-pin", "GPIO27", "GPIO pin for the MCLR line")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("icspd %s (%s)\n", version, dispatch.Version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	var bus signal.Bus
	if dryRunFlag {
		trace := signal.NewTrace()
		trace.Notify = func(e signal.Event) {
			fmt.Fprintln(os.Stderr, e)
		}
		bus = trace
	} else {
		b, err := gpio.Open(clockPinFlag, dataPinFlag, progPinFlag, resetPinFlag)
		if err != nil {
			return err
		}
		bus = b
	}

	if heartbeatFlag {
		hb := heartbeat.New(time.Second)
		hb.Start()
		defer hb.Stop()
	}

	var r io.Reader
	var w io.Writer
	switch {
	case stdioFlag:
		r, w = os.Stdin, os.Stdout
	case portFlag != "":
		port, err := serial.Open(portFlag, baudFlag)
		if err != nil {
			return err
		}
		defer port.Close()
		if err := port.SetBlocking(); err != nil {
			return fmt.Errorf("failed to set blocking reads: %w", err)
		}
		r, w = port, port
	default:
		return fmt.Errorf("either --port or --stdio is required")
	}

	engine := icsp.New(bus)
	return dispatch.New(r, w, engine).Run()
}
