package main

import (
	"encoding/hex"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read a byte range from the chip",
	Flags: append([]cli.Flag{
		&cli.UintFlag{Name: "address", Usage: "start offset", Required: true},
		&cli.IntFlag{Name: "length", Usage: "number of bytes to read", Value: 16},
		&cli.StringFlag{Name: "out", Usage: "write bytes to a file instead of dumping them"},
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
		buf := make([]byte, length)
		err = dev.Read(ctx, uint32(c.Uint("address")), buf)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		if out := c.String("out"); out != "" {
			if err = os.WriteFile(out, buf, 0o644); err != nil {
				return console.Exit(1, "could not write output file: %s", console.Red(err))
			}
			console.PInfof(console.PictoFinish, "%d bytes saved to %s", length, out)
			return nil
		}
		console.Print(hex.Dump(buf))
		return nil
	},
}

var dumpCmd = cli.Command{
	Name:  "dump",
	Usage: "read the whole chip into a file",
	Flags: append([]cli.Flag{
		&cli.StringFlag{Name: "out", Usage: "output file", Required: true},
	}, chipFlags...),
	Action: func(c *cli.Context) error {
		dev, err := openChip(c)
		if err != nil {
			return err
		}
		ctx := commandContext(c)
		buf := make([]byte, dev.Capacity())
		console.PInfof(console.PictoChip, "reading %d bytes from %s", dev.Capacity(), dev.Variant())
		err = dev.Read(ctx, 0, buf)
		if err != nil {
			return console.Exit(1, "read error: %s", console.Red(err))
		}
		if err = os.WriteFile(c.String("out"), buf, 0o644); err != nil {
			return console.Exit(1, "could not write output file: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "chip contents saved to %s", c.String("out"))
		return nil
	},
}
