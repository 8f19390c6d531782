package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/viper"

	"github.com/pv-scom/go-scom/pkg/cmdutil"
	"github.com/pv-scom/go-scom/pkg/device"
	"github.com/pv-scom/go-scom/pkg/manager"
)

type context struct{}

// loadConfig builds a manager.Config from a config file, if one was
// given, overlaid with the command's own flags/env vars.
func loadConfig(configFile string, port string, baud int) (*manager.Config, error) {
	if configFile == "" {
		return manager.NewConfig(manager.WithPort(port), manager.WithBaud(baud)), nil
	}
	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", configFile, err)
	}
	cfg, err := manager.ConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	if port != "" {
		cfg.Port = port
	}
	if baud != 0 {
		cfg.Baud = baud
	}
	return cfg, nil
}

type discoverCmd struct {
	Config string `optional:"" type:"accessiblefile" help:"Path to a viper-readable config file (yaml/json/toml)"`
	Port   string `optional:"" env:"SCOM_INTERFACE" help:"Serial device path, e.g. /dev/ttyUSB0"`
	Baud   int    `default:"38400" env:"SCOM_BAUDRATE" help:"Serial baud rate"`
	Output string `default:"table" enum:"table,openmetrics" help:"Output format"`
}

func (c *discoverCmd) Run(ctx *context) error {
	cfg, err := loadConfig(c.Config, c.Port, c.Baud)
	if err != nil {
		return err
	}
	m, err := manager.Create(cfg)
	if err != nil {
		return fmt.Errorf("manager.Create: %w", err)
	}
	defer m.Destroy()

	// One sweep interval's worth of settle time, then dump whatever was found.
	time.Sleep(cfg.ControlInterval + 500*time.Millisecond)

	var found []*device.Device
	for kind := range cfg.ScanRanges {
		found = append(found, m.Registry().Instances(kind)...)
	}

	switch c.Output {
	case "openmetrics":
		outputMetrics(m, found)
	default:
		outputTable(found)
	}
	return nil
}

type watchCmd struct {
	Config string `optional:"" type:"accessiblefile" help:"Path to a viper-readable config file (yaml/json/toml)"`
	Port   string `optional:"" env:"SCOM_INTERFACE" help:"Serial device path, e.g. /dev/ttyUSB0"`
	Baud   int    `default:"38400" env:"SCOM_BAUDRATE" help:"Serial baud rate"`
}

func (c *watchCmd) Run(ctx *context) error {
	cfg, err := loadConfig(c.Config, c.Port, c.Baud)
	if err != nil {
		return err
	}
	m, err := manager.Create(cfg)
	if err != nil {
		return fmt.Errorf("manager.Create: %w", err)
	}
	defer m.Destroy()

	m.Subscribe(&manager.Subscriber{
		OnConnected: func(d *device.Device) {
			fmt.Printf("+ %s #%d connected\n", d.Kind, d.Address)
			spew.Dump(d)
		},
		OnDisconnected: func(d *device.Device) {
			fmt.Printf("- %s #%d disconnected\n", d.Kind, d.Address)
		},
	})

	select {}
}

var cli struct {
	Discover discoverCmd `cmd:"" help:"Scan the bus once and report the devices found."`
	Watch    watchCmd    `cmd:"" help:"Scan the bus continuously and print connect/disconnect events."`
}

func main() {
	ktx := kong.Parse(&cli,
		kong.Name("scomdiag"),
		kong.Description("Inspect devices on a SCOM serial bus."),
		kong.NamedMapper("accessiblefile", cmdutil.AccessibleFileMapper()),
	)
	if err := ktx.Run(&context{}); err != nil {
		ktx.FatalIfErrorf(err)
	}
}

func outputTable(found []*device.Device) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "ADDRESS\tKIND\tVERSION\n")
	for _, d := range found {
		v := d.SoftwareVersion()
		fmt.Fprintf(w, "%d\t%s\t%d.%d.%d\n", d.Address, d.Kind, v.Major, v.Minor, v.Patch)
	}
	w.Flush()
}
