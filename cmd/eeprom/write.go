package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var writeCmd = cli.Command{
	Name:  "write",
	Usage: "write bytes at the given offset",
	Flags: append([]cli.Flag{
		&cli.UintFlag{Name: "address", Usage: "start offset", Required: true},
		&cli.StringFlag{Name: "data", Usage: "hex bytes to write (e.g. '01FF23')"},
		&cli.StringFlag{Name: "in", Usage: "read bytes to write from a file"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the overwrite confirmation"},
	}, chipFlags...),
	Action: func(c *cli.Context) error {
		dev, err := openChip(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		var data []byte
		switch {
		case c.String("data") != "":
			data, err = hexStringToBytes(c.String("data"))
			if err != nil {
				return console.Exit(1, "invalid data hex string: %s", console.Red(err))
			}
		case c.String("in") != "":
			data, err = os.ReadFile(c.String("in"))
			if err != nil {
				return console.Exit(1, "could not read input file: %s", console.Red(err))
			}
		default:
			return console.Exit(1, "either --data or --in is required")
		}
		address := uint32(c.Uint("address"))
		if !c.Bool("yes") {
			question := fmt.Sprintf("overwrite %d bytes at %#x on %s?", len(data), address, dev.Variant())
			answer, err := console.YesOrNo(question)
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if answer != console.Yes {
				console.Info("aborted")
				return nil
			}
		}
		err = dev.Write(ctx, address, data)
		if err != nil {
			return console.Exit(1, "write error: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "wrote %d bytes at %#x", len(data), address)
		return nil
	},
}

var fillCmd = cli.Command{
	Name:  "fill",
	Usage: "fill a byte range with a repeated pattern byte",
	Flags: append([]cli.Flag{
		&cli.UintFlag{Name: "address", Usage: "start offset", Required: true},
		&cli.IntFlag{Name: "length", Usage: "number of bytes to fill", Required: true},
		&cli.UintFlag{Name: "pattern", Usage: "pattern byte", Value: 0xFF},
	}, chipFlags...),
	Action: func(c *cli.Context) error {
		dev, err := openChip(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		length := c.Int("length")
		if length <= 0 {
			return console.Exit(1, "length out of range: %d", length)
		}
		pattern := c.Uint("pattern")
		if pattern > 0xFF {
			return console.Exit(1, "pattern byte out of range: %#x", pattern)
		}
		data := bytes.Repeat([]byte{byte(pattern)}, length)
		err = dev.Write(ctx, uint32(c.Uint("address")), data)
		if err != nil {
			return console.Exit(1, "write error: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "filled %d bytes at %#x with %#02x", length, c.Uint("address"), pattern)
		return nil
	},
}

func hexStringToBytes(s string) ([]byte, error) {
	normalized := strings.ReplaceAll(strings.TrimPrefix(s, "0x"), " ", "")
	return hex.DecodeString(normalized)
}
