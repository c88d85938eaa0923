package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tmcnally/icsp-bridge/internal/detect"
	"github.com/tmcnally/icsp-bridge/internal/host"
	"github.com/tmcnally/icsp-bridge/internal/icsp"
	"github.com/tmcnally/icsp-bridge/internal/intelhex"
	"github.com/tmcnally/icsp-bridge/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag    string
	baudFlag    int
	modeFlag    string
	latchesFlag int
	verifyFlag  bool
	eraseFlag   bool
	countFlag   int
	dataFlag    bool
)

// pageWords is the fetch granularity for reads; the adapter honors at most
// 255 words per fetch command.
const pageWords = 32

func main() {
	rootCmd := &cobra.Command{
		Use:   "icsp-flash",
		Short: "Flash PIC microcontrollers through a serial ICSP adapter",
		Long: `icsp-flash programs a target microcontroller through an attached
ICSP adapter (see icspd). Firmware is read and written as Intel HEX.

The target's device family decides the programming timing; pass it with
--mode on every run, the adapter does not detect it.`,
	}

	flashCmd := &cobra.Command{
		Use:   "flash <firmware.hex>",
		Short: "Write a firmware image to the target",
		Args:  cobra.ExactArgs(1),
		RunE:  runFlash,
	}
	flashCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	flashCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	flashCmd.Flags().StringVarP(&modeFlag, "mode", "m", "mid", "Programming mode: mid or enhanced")
	flashCmd.Flags().IntVar(&latchesFlag, "latches", 1, "Program data latches per commit")
	flashCmd.Flags().BoolVar(&verifyFlag, "verify", true, "Read back and compare after flashing")
	flashCmd.Flags().BoolVar(&eraseFlag, "erase", true, "Bulk erase program memory first")

	readCmd := &cobra.Command{
		Use:   "read <out.hex>",
		Short: "Read the target's program memory into a HEX file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
	readCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	readCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	readCmd.Flags().StringVarP(&modeFlag, "mode", "m", "mid", "Programming mode: mid or enhanced")
	readCmd.Flags().IntVarP(&countFlag, "count", "c", 2048, "Number of program words to read")

	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Bulk erase the target",
		RunE:  runErase,
	}
	eraseCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	eraseCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	eraseCmd.Flags().StringVarP(&modeFlag, "mode", "m", "mid", "Programming mode: mid or enhanced")
	eraseCmd.Flags().BoolVar(&dataFlag, "data", false, "Also erase data memory")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show attached adapter info",
		RunE:  runInfo,
	}
	infoCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	infoCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("icsp-flash %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(flashCmd, readCmd, eraseCmd, infoCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func parseMode() (icsp.Mode, error) {
	switch modeFlag {
	case "mid":
		return icsp.ModeMid, nil
	case "enhanced":
		return icsp.ModeEnhanced, nil
	}
	return 0, fmt.Errorf("unknown mode %q (want mid or enhanced)", modeFlag)
}

// connect resolves the port, opens it and syncs with the adapter.
func connect(opts ...host.Option) (*serial.Port, *host.Client, error) {
	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting adapter...")
		result, err := detect.DetectAdapter(baudFlag)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found %s on %s\n", result.Version, result.Port)
	}

	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open port: %w", err)
	}

	client := host.New(port, opts...)
	if err := client.Sync(); err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("adapter not responding: %w", err)
	}

	ver, err := client.Version()
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	fmt.Printf("Adapter: %s on %s @ %d baud\n", ver, portName, baudFlag)

	return port, client, nil
}

func newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func runFlash(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open firmware file: %w", err)
	}
	image, err := intelhex.Parse(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	lo, hi, ok := image.Extent()
	if !ok {
		return fmt.Errorf("%s contains no data", args[0])
	}
	firstWord := lo / 2
	words := make([]uint16, hi/2-firstWord+1)
	for i := range words {
		words[i] = image.WordOr(firstWord+uint32(i), intelhex.ErasedProgramWord)
	}
	fmt.Printf("Firmware: %s (%d words at 0x%04X)\n", args[0], len(words), firstWord)

	bar := newBar(len(words), "Flashing")
	port, client, err := connect(
		host.WithMode(mode),
		host.WithLatches(latchesFlag),
		host.WithProgress(func(current, total int) {
			bar.Set(current)
		}),
	)
	if err != nil {
		return err
	}
	defer port.Close()

	if err := client.EnterSession(); err != nil {
		return err
	}
	defer client.ExitSession()

	if eraseFlag {
		fmt.Println("Erasing program memory...")
		if err := client.EraseProgram(); err != nil {
			return err
		}
	}

	if err := client.ResetAddress(); err != nil {
		return err
	}
	if firstWord > 0 {
		if err := client.JumpAddress(int(firstWord)); err != nil {
			return err
		}
	}

	if err := client.WriteProgram(words); err != nil {
		return err
	}
	bar.Finish()
	fmt.Println("\nWrite complete!")

	if verifyFlag {
		fmt.Println("Verifying...")
		if err := verifyWords(client, firstWord, words); err != nil {
			return err
		}
		fmt.Println("Verify OK")
	}

	return nil
}

func verifyWords(client *host.Client, firstWord uint32, want []uint16) error {
	if err := client.ResetAddress(); err != nil {
		return err
	}
	if firstWord > 0 {
		if err := client.JumpAddress(int(firstWord)); err != nil {
			return err
		}
	}

	for off := 0; off < len(want); off += pageWords {
		n := pageWords
		if off+n > len(want) {
			n = len(want) - off
		}
		got, err := client.ReadProgram(n)
		if err != nil {
			return err
		}
		for i, w := range got {
			if w != want[off+i] {
				return fmt.Errorf("verification failed at word 0x%04X: read 0x%04X, want 0x%04X",
					firstWord+uint32(off+i), w, want[off+i])
			}
		}
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}

	port, client, err := connect(host.WithMode(mode))
	if err != nil {
		return err
	}
	defer port.Close()

	if err := client.EnterSession(); err != nil {
		return err
	}
	defer client.ExitSession()

	if err := client.ResetAddress(); err != nil {
		return err
	}

	bar := newBar(countFlag, "Reading")
	image := intelhex.NewImage()
	for addr := 0; addr < countFlag; addr += pageWords {
		n := pageWords
		if addr+n > countFlag {
			n = countFlag - addr
		}
		words, err := client.ReadProgram(n)
		if err != nil {
			return err
		}
		for i, w := range words {
			// Skip erased words so the file only carries real content.
			if w != intelhex.ErasedProgramWord {
				image.SetWord(uint32(addr+i), w)
			}
		}
		bar.Set(addr + n)
	}
	bar.Finish()

	out, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", args[0], err)
	}
	defer out.Close()
	if err := image.Write(out); err != nil {
		return fmt.Errorf("failed to write %s: %w", args[0], err)
	}

	fmt.Printf("\nRead %d words, %d programmed, into %s\n", countFlag, image.Len()/2, args[0])
	return nil
}

func runErase(cmd *cobra.Command, args []string) error {
	mode, err := parseMode()
	if err != nil {
		return err
	}

	port, client, err := connect(host.WithMode(mode))
	if err != nil {
		return err
	}
	defer port.Close()

	if err := client.EnterSession(); err != nil {
		return err
	}
	defer client.ExitSession()

	fmt.Println("Erasing program memory...")
	if err := client.EraseProgram(); err != nil {
		return err
	}
	if dataFlag {
		fmt.Println("Erasing data memory...")
		if err := client.EraseData(); err != nil {
			return err
		}
	}

	fmt.Println("Done!")
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	if portFlag != "" {
		result, err := detect.DetectOnPort(portFlag, baudFlag)
		if err != nil {
			return fmt.Errorf("failed to detect adapter on %s: %w", portFlag, err)
		}
		printAdapterInfo(result)
		return nil
	}

	fmt.Println("Scanning for adapters...")
	adapters, err := detect.ListAdapters(baudFlag)
	if err != nil {
		return err
	}

	if len(adapters) == 0 {
		fmt.Println("No adapters found")
		return nil
	}

	fmt.Printf("Found %d adapter(s):\n\n", len(adapters))
	for i, a := range adapters {
		fmt.Printf("Adapter %d:\n", i+1)
		printAdapterInfo(&a)
		fmt.Println()
	}
	return nil
}

func printAdapterInfo(r *detect.Result) {
	fmt.Printf("  Port:    %s\n", r.Port)
	fmt.Printf("  Version: %s\n", r.Version)
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
