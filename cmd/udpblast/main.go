// Package main provides the CLI entry point for udpblast.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/postalsys/udpblast/internal/blast"
	"github.com/postalsys/udpblast/internal/config"
	"github.com/postalsys/udpblast/internal/health"
	"github.com/postalsys/udpblast/internal/input"
	"github.com/postalsys/udpblast/internal/logging"
	"github.com/postalsys/udpblast/internal/metrics"
	"github.com/postalsys/udpblast/internal/receiver"
	"github.com/postalsys/udpblast/internal/wizard"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "udpblast",
		Short: "udpblast - pipe a byte stream into UDP datagrams",
		Long: `udpblast reads a byte stream and sends it as evenly sized UDP
datagrams to a unicast, broadcast or multicast destination.

Every datagram carries exactly packet-size bytes except the last one,
which carries whatever remains when the input ends.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// sendFlags are the command line overrides for a config file.
type sendFlags struct {
	configPath   string
	file         string
	packetSize   string
	ttl          int
	watermark    string
	rate         string
	chunkSize    string
	strict       bool
	localAddress string
	logLevel     string
	logFormat    string
	metricsAddr  string
}

func sendCmd() *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send [destination]",
		Short: "Send stdin or a file as UDP datagrams",
		Long: `Send stdin (or --file) as UDP datagrams.

The destination is a port ("1234", sent to localhost), host:port or
[ipv6]:port. Without an argument the configured destination is used,
which defaults to localhost:1234.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := cfg.SetDestination(args[0]); err != nil {
					return err
				}
			}
			if err := applySendFlags(cmd, cfg, f); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runSend(cmd.Context(), cfg, f.file)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "Read from this file instead of stdin")
	cmd.Flags().StringVarP(&f.packetSize, "packet-size", "s", "", "Datagram payload size (e.g. 512, 1400, 8KiB)")
	cmd.Flags().IntVarP(&f.ttl, "ttl", "t", 0, "Unicast or multicast TTL, 0 keeps the OS default")
	cmd.Flags().StringVar(&f.watermark, "watermark", "", "Bytes queued before writes block (e.g. 16KiB)")
	cmd.Flags().StringVarP(&f.rate, "rate", "r", "", "Limit input to this many bytes per second (e.g. 1MB)")
	cmd.Flags().StringVar(&f.chunkSize, "chunk-size", "", "Read size per write (e.g. 64KiB)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Stop on the first datagram send error")
	cmd.Flags().StringVar(&f.localAddress, "local-address", "", "Local IP to bind the sending socket to")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applySendFlags copies every flag the user set onto cfg.
func applySendFlags(cmd *cobra.Command, cfg *config.Config, f sendFlags) error {
	flags := cmd.Flags()

	sizes := []struct {
		name  string
		value string
		dst   *config.ByteSize
	}{
		{"packet-size", f.packetSize, &cfg.Session.PacketSize},
		{"watermark", f.watermark, &cfg.Session.BufferWatermark},
		{"rate", f.rate, &cfg.Input.RateLimit},
		{"chunk-size", f.chunkSize, &cfg.Input.ChunkSize},
	}
	for _, s := range sizes {
		if !flags.Changed(s.name) {
			continue
		}
		n, err := input.ParseSize(s.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", s.name, err)
		}
		*s.dst = config.ByteSize(n)
	}

	if flags.Changed("ttl") {
		cfg.Session.TTL = f.ttl
	}
	if flags.Changed("strict") {
		cfg.Session.StrictSend = f.strict
	}
	if flags.Changed("local-address") {
		cfg.Session.LocalAddress = f.localAddress
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Enabled = f.metricsAddr != ""
		cfg.Metrics.Address = f.metricsAddr
	}
	return nil
}

func runSend(ctx context.Context, cfg *config.Config, file string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	src, closeSrc, err := openInput(file)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts := cfg.ToOptions()
	opts.Logger = logger

	var sessions *health.Sessions
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		opts.Metrics = metrics.NewMetricsWithRegistry(reg)
		sessions = health.NewSessions()

		srv := health.NewServer(health.ServerConfig{
			Address:      cfg.Metrics.Address,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Gatherer:     reg,
		}, sessions)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Stop()
		logger.Info("metrics server started", logging.KeyAddress, srv.Address().String())
	}

	opts.OnSendError = func(err error, size int) {
		if cfg.Session.StrictSend {
			return
		}
		logger.Debug("datagram dropped", logging.KeyBytes, size, logging.KeyError, err)
	}

	b, err := blast.New(cfg.BlastDestination(), opts)
	if err != nil {
		return err
	}
	if sessions != nil {
		sessions.Add(b)
	}

	logger.Info("sending",
		logging.KeyDestination, b.Destination().String(),
		logging.KeyPacketSize, int(cfg.Session.PacketSize),
		logging.KeyTTL, cfg.Session.TTL)

	start := time.Now()
	reader := input.NewRateLimitedReader(ctx, src, int64(cfg.Input.RateLimit))
	_, pumpErr := input.Pump(ctx, reader, b, int(cfg.Input.ChunkSize))

	// Flush whatever was accepted, even when interrupted
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closeErr := b.CloseContext(closeCtx)

	printSummary(os.Stderr, b.Stats(), time.Since(start))

	switch {
	case closeErr != nil:
		return closeErr
	case pumpErr != nil && !errors.Is(pumpErr, context.Canceled):
		return pumpErr
	}
	return nil
}

func openInput(file string) (io.Reader, func(), error) {
	if file != "" && file != "-" {
		fh, err := os.Open(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open input: %w", err)
		}
		return fh, func() { fh.Close() }, nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "Reading from terminal, press Ctrl-D to finish.")
	}
	return os.Stdin, func() {}, nil
}

func printSummary(w io.Writer, st blast.Stats, elapsed time.Duration) {
	fmt.Fprintf(w, "Sent %d datagrams (%s) to %s in %s",
		st.Datagrams, input.FormatSize(int64(st.Bytes)), st.Destination, elapsed.Round(time.Millisecond))
	if st.Bytes > 0 {
		fmt.Fprintf(w, ", %s", input.FormatRate(int64(st.Bytes), elapsed.Seconds()))
	}
	fmt.Fprintln(w)
	if st.SendErrors > 0 {
		fmt.Fprintf(w, "%d datagrams failed to send\n", st.SendErrors)
	}
}

func listenCmd() *cobra.Command {
	var (
		hexDump   bool
		iface     string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   "listen [address]",
		Short: "Print datagrams received on an address",
		Long: `Listen for UDP datagrams and print them, for checking what a sender
puts on the wire. The address is ip:port; a multicast ip joins the group.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := receiver.DefaultConfig()
			if len(args) == 1 {
				cfg.Address = args[0]
			}
			cfg.Interface = iface

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger(logLevel, logFormat)

			r, err := receiver.Listen(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer r.Close()

			fmt.Fprintf(os.Stderr, "Listening on %s\n", r.Addr())

			var count, total int
			err = r.Serve(ctx, func(d receiver.Datagram) {
				count++
				total += len(d.Data)
				if hexDump {
					fmt.Printf("%s %d bytes\n%s", d.Source, len(d.Data), hex.Dump(d.Data))
					return
				}
				os.Stdout.Write(d.Data)
			})

			fmt.Fprintf(os.Stderr, "\nReceived %d datagrams (%s)\n", count, input.FormatSize(int64(total)))
			return err
		},
	}

	cmd.Flags().BoolVarP(&hexDump, "hex", "x", false, "Print a hex dump per datagram instead of raw bytes")
	cmd.Flags().StringVarP(&iface, "interface", "i", "", "Interface for multicast joins")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text, json")

	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("init needs an interactive terminal")
			}
			_, err := wizard.New().Run()
			return err
		},
	}
}

func configCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Print(cfg.String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}
