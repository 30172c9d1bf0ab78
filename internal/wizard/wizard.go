// Package wizard provides the interactive "udpblast init" setup.
package wizard

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/udpblast/internal/blast"
	"github.com/postalsys/udpblast/internal/config"
	"github.com/postalsys/udpblast/internal/input"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Answers holds the raw form values. Sizes and numbers stay strings until
// buildConfig so the forms can bind to them directly.
type Answers struct {
	ConfigPath      string
	Host            string
	Port            string
	PacketSize      string
	TTL             string
	BufferWatermark string
	StrictSend      bool
	RateLimit       string
	LogLevel        string
	LogFormat       string
	MetricsEnabled  bool
	MetricsAddress  string
}

// DefaultAnswers returns the values pre-filled in the forms.
func DefaultAnswers() Answers {
	def := config.Default()
	return Answers{
		ConfigPath:      "./udpblast.yaml",
		Host:            def.Destination.Host,
		Port:            strconv.Itoa(def.Destination.Port),
		PacketSize:      strconv.Itoa(int(def.Session.PacketSize)),
		TTL:             "0",
		BufferWatermark: "16KiB",
		RateLimit:       "0",
		LogLevel:        def.Log.Level,
		LogFormat:       def.Log.Format,
		MetricsAddress:  def.Metrics.Address,
	}
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := DefaultAnswers()

	if err := w.askDestination(&a); err != nil {
		return nil, err
	}
	if err := w.askSession(&a); err != nil {
		return nil, err
	}
	if err := w.askAdvancedOptions(&a); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}

	if err := writeConfig(cfg, a.ConfigPath); err != nil {
		return nil, err
	}

	w.printSummary(a.ConfigPath, cfg)

	return &Result{Config: cfg, ConfigPath: a.ConfigPath}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
            _       _     _           _
  _   _  __| |_ __ | |__ | | __ _ ___| |_
 | | | |/ _' | '_ \| '_ \| |/ _' / __| __|
 | |_| | (_| | |_) | |_) | | (_| \__ \ |_
  \__,_|\__,_| .__/|_.__/|_|\__,_|___/\__|
             |_|
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  Stream to UDP datagram blaster - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askDestination(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Destination").
				Description("Where datagrams are sent. Multicast addresses\n(224.0.0.0/4, ff00::/8) are detected automatically."),

			huh.NewInput().
				Title("Config File Path").
				Description("Where to write the configuration file").
				Placeholder("./udpblast.yaml").
				Value(&a.ConfigPath).
				Validate(validateConfigPath),

			huh.NewInput().
				Title("Host").
				Description("Hostname or IP address").
				Placeholder("localhost").
				Value(&a.Host).
				Validate(validateHost),

			huh.NewInput().
				Title("Port").
				Placeholder("1234").
				Value(&a.Port).
				Validate(validatePort),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askSession(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Session").
				Description("How the byte stream is cut into datagrams."),

			huh.NewInput().
				Title("Packet Size").
				Description("Payload bytes per datagram (e.g. 512, 1400, 8KiB)").
				Value(&a.PacketSize).
				Validate(validatePacketSize),

			huh.NewInput().
				Title("TTL").
				Description("0 keeps the OS default; multicast destinations get the multicast TTL").
				Value(&a.TTL).
				Validate(validateTTL),

			huh.NewInput().
				Title("Buffer Watermark").
				Description("Bytes queued before writers block").
				Value(&a.BufferWatermark).
				Validate(validateSize),

			huh.NewInput().
				Title("Input Rate Limit").
				Description("Bytes per second read from the input, 0 for unlimited").
				Value(&a.RateLimit).
				Validate(validateSize),

			huh.NewConfirm().
				Title("Stop on the first send error?").
				Description("By default failed datagrams are logged and skipped").
				Value(&a.StrictSend),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askAdvancedOptions(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),

			huh.NewSelect[string]().
				Title("Log Format").
				Options(
					huh.NewOption("Text", "text"),
					huh.NewOption("JSON", "json"),
				).
				Value(&a.LogFormat),

			huh.NewConfirm().
				Title("Enable metrics endpoint?").
				Description("HTTP endpoint with /metrics, /healthz and /ready").
				Value(&a.MetricsEnabled),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}

	if !a.MetricsEnabled {
		return nil
	}

	addrForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Metrics Address").
				Placeholder("127.0.0.1:9464").
				Value(&a.MetricsAddress).
				Validate(func(s string) error {
					if _, _, err := net.SplitHostPort(s); err != nil {
						return fmt.Errorf("invalid address format (use host:port)")
					}
					return nil
				}),
		),
	).WithTheme(w.theme)

	return addrForm.Run()
}

func validateConfigPath(s string) error {
	if s == "" {
		return fmt.Errorf("config path is required")
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		return fmt.Errorf("config file should have .yaml or .yml extension")
	}
	return nil
}

func validateHost(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func validatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("port must be a number between 0 and 65535")
	}
	return nil
}

func validatePacketSize(s string) error {
	n, err := input.ParseSize(s)
	if err != nil {
		return err
	}
	if n < 1 || n > 65507 {
		return fmt.Errorf("packet size must be between 1 and 65507 bytes")
	}
	return nil
}

func validateTTL(s string) error {
	ttl, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || ttl < 0 || ttl > 255 {
		return fmt.Errorf("TTL must be a number between 0 and 255")
	}
	return nil
}

func validateSize(s string) error {
	_, err := input.ParseSize(s)
	return err
}

// buildConfig turns form answers into a validated config.
func buildConfig(a Answers) (*config.Config, error) {
	cfg := config.Default()

	dst, err := blast.ParseDestination(net.JoinHostPort(strings.TrimSpace(a.Host), strings.TrimSpace(a.Port)))
	if err != nil {
		return nil, err
	}
	cfg.Destination.Host = dst.Host
	cfg.Destination.Port = dst.Port

	packetSize, err := input.ParseSize(a.PacketSize)
	if err != nil {
		return nil, err
	}
	cfg.Session.PacketSize = config.ByteSize(packetSize)

	if cfg.Session.TTL, err = strconv.Atoi(strings.TrimSpace(a.TTL)); err != nil {
		return nil, fmt.Errorf("invalid TTL %q", a.TTL)
	}

	watermark, err := input.ParseSize(a.BufferWatermark)
	if err != nil {
		return nil, err
	}
	cfg.Session.BufferWatermark = config.ByteSize(watermark)
	cfg.Session.StrictSend = a.StrictSend

	rateLimit, err := input.ParseSize(a.RateLimit)
	if err != nil {
		return nil, err
	}
	cfg.Input.RateLimit = config.ByteSize(rateLimit)

	cfg.Log.Level = a.LogLevel
	cfg.Log.Format = a.LogFormat

	cfg.Metrics.Enabled = a.MetricsEnabled
	if a.MetricsEnabled {
		cfg.Metrics.Address = a.MetricsAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeConfig(cfg *config.Config, path string) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# udpblast configuration
# Generated by setup wizard

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  Destination:  %s\n", cfg.BlastDestination())
	fmt.Printf("  Packet size:  %s\n", cfg.Session.PacketSize)
	if cfg.Session.TTL > 0 {
		fmt.Printf("  TTL:          %d\n", cfg.Session.TTL)
	}
	if cfg.Input.RateLimit > 0 {
		fmt.Printf("  Rate limit:   %s/s\n", cfg.Input.RateLimit)
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.Metrics.Address)
	}

	fmt.Println()
	fmt.Println("  To send stdin:")
	fmt.Printf("    udpblast send -c %s < file\n", configPath)
	fmt.Println()
}
