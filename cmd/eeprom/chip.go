package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/at24cx"
	"github.com/mklimuk/eeprom/cmd/eeprom/console"
	"github.com/mklimuk/eeprom/i2c"
)

// flags shared by all chip access commands
var chipFlags = []cli.Flag{
	&cli.StringFlag{Name: "chip", Aliases: []string{"c"}, Usage: "chip variant (e.g. 24C256)", Value: "24C256"},
	&cli.StringFlag{Name: "adapter", Aliases: []string{"a"}, Usage: "bus adapter (mcp2221 or linux)", Value: "mcp2221"},
	&cli.StringFlag{Name: "bus", Usage: "bus device name for the linux adapter", Value: "/dev/i2c-1"},
	&cli.UintFlag{Name: "pins", Usage: "state of the hardware address pins A2..A0"},
	&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
}

func commandContext(c *cli.Context) context.Context {
	return console.SetVerbose(context.Background(), c.Bool("verbose"))
}

func openBus(c *cli.Context) (eeprom.I2CBus, error) {
	switch c.String("adapter") {
	case "mcp2221":
		return adapter.NewMCP2221(), nil
	case "linux":
		return i2c.NewGenericBus(c.String("bus"))
	default:
		return nil, console.Exit(1, "unknown adapter: %s", console.Red(c.String("adapter")))
	}
}

func openChip(c *cli.Context) (*at24cx.AT24Cx, error) {
	variant, ok := at24cx.ParseVariant(c.String("chip"))
	if !ok {
		return nil, console.Exit(1, "unknown chip variant: %s", console.Red(c.String("chip")))
	}
	bus, err := openBus(c)
	if err != nil {
		return nil, err
	}
	dev, err := at24cx.New(bus, variant, at24cx.WithChipSelect(byte(c.Uint("pins"))))
	if err != nil {
		return nil, console.Exit(1, "driver configuration error: %s", console.Red(err))
	}
	return dev, nil
}
