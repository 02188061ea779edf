// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/gd77-tools/lib/config"
	"github.com/usedbytes/gd77-tools/lib/flash"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/protocol"
	"github.com/usedbytes/gd77-tools/lib/sgl"
	"github.com/usedbytes/log"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if ctx.IsSet("config") {
		var err error
		cfg, err = config.LoadConfig(ctx.String("config"))
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if ctx.IsSet("model") {
		m, err := model.Parse(ctx.String("model"))
		if err != nil {
			return nil, cli.Exit(err.Error(), 5)
		}
		cfg.Model = m
	}

	if ctx.IsSet("force") {
		cfg.Force = ctx.Bool("force")
	}

	log.Verboseln(cfg)

	return cfg, nil
}

func flashAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	progress, done := progressBar(ctx.Bool("verbose"))
	defer done()

	opts := flash.Options{
		Firmware: ctx.String("firmware"),
		Model:    cfg.Model,
		Force:    cfg.Force,
		MaxSize:  int(cfg.Transfer.MaxFlashSize),
		Timeout:  cfg.Transfer.Timeout.Duration,
		Transfer: cfg.Transfer.Config(),
		Progress: progress,
	}

	return flash.Run(opts, usbOpener(cfg))
}

func probeAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	t, err := usbOpener(cfg)()
	if err != nil {
		return err
	}
	defer t.Close()

	m, err := protocol.Probe(t, cfg.Transfer.Timeout.Duration)
	if err != nil {
		return err
	}

	if !m.Known() {
		return cli.Exit("Failed to detect your transceiver model", 5)
	}

	log.Println("Detected model:", m)
	if m == model.GD77S {
		log.Println("(An RD-5R identifies itself the same way. Use --model RD-5R for that.)")
	}

	return nil
}

func loadInputFile(ctx *cli.Context) (*sgl.Container, string, error) {
	if ctx.Args().Len() != 1 {
		return nil, "", fmt.Errorf("INPUT_FILE is required")
	}
	fname := ctx.Args().First()

	c, err := flash.LoadContainer(fname, ctx.Int("max-size"))
	if err != nil {
		return nil, fname, err
	}

	return c, fname, nil
}

func infoAction(ctx *cli.Context) error {
	c, _, err := loadInputFile(ctx)
	if err != nil {
		return err
	}

	log.Println(c)

	return nil
}

func extractAction(ctx *cli.Context) error {
	c, fname, err := loadInputFile(ctx)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(fname), filepath.Ext(fname))
	dir := ctx.String("output")
	if dir == "" {
		dir = filepath.Dir(fname)
	}

	img := config.NewImage(c)
	img.GenerateFilename(base)

	desc := filepath.Join(dir, base+".toml")
	err = img.Write(desc)
	if err != nil {
		return err
	}

	log.Println("Payload:    ", img.DataPath(dir))
	log.Println("Description:", desc)

	return nil
}

func parseXOR(str string) ([2]byte, error) {
	v, err := strconv.ParseUint(str, 0, 16)
	if err != nil {
		return [2]byte{}, errors.Wrapf(err, "xor '%s'", str)
	}
	return [2]byte{byte(v >> 8), byte(v)}, nil
}

func parseOffset(v uint) (uint16, error) {
	if v > 0xffff {
		return 0, errors.Errorf("offset 0x%x doesn't fit in 16 bits", v)
	}
	return uint16(v), nil
}

// packAction builds a container either from an image description written
// by extract, or from a raw payload for the model given with --model.
func packAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return fmt.Errorf("INPUT_FILE and OUTPUT_FILE are required")
	}
	in, out := ctx.Args().Get(0), ctx.Args().Get(1)

	var c *sgl.Container
	if filepath.Ext(in) == ".toml" {
		img, err := config.LoadImage(in)
		if err != nil {
			return err
		}
		c = img.Container()
	} else {
		m, err := model.Parse(ctx.String("model"))
		if err != nil {
			return cli.Exit(err.Error(), 5)
		}

		payload, err := ioutil.ReadFile(in)
		if err != nil {
			return errors.Wrap(err, "Reading payload")
		}

		xor, err := parseXOR(ctx.String("xor"))
		if err != nil {
			return err
		}

		offset, err := parseOffset(ctx.Uint("offset"))
		if err != nil {
			return err
		}

		c = &sgl.Container{
			Payload:  payload,
			Key:      m.Info().EncodeKey,
			ModelTag: m.Info().Tag,
			Offset:   offset,
			XORPair:  xor,
		}
	}

	if len(c.Payload) > ctx.Int("max-size") {
		return errors.Errorf("Payload too large: %d bytes, limit is %d", len(c.Payload), ctx.Int("max-size"))
	}

	raw, err := c.Encode()
	if err != nil {
		return err
	}

	err = ioutil.WriteFile(out, raw, 0644)
	if err != nil {
		return err
	}

	log.Verboseln(c)
	log.Printf("Wrote %s (%d bytes)\n", out, len(raw))

	return nil
}

func configAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return fmt.Errorf("OUTPUT_FILE is required")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	return cfg.WriteTOML(ctx.Args().First())
}

func main() {
	modelFlag := &cli.StringFlag{
		Name:    "model",
		Aliases: []string{"m"},
		Usage:   "Select transceiver model. Models are: " + strings.Join(model.Names(), ", "),
	}

	maxSizeFlag := &cli.IntFlag{
		Name:  "max-size",
		Usage: "Largest payload accepted",
		Value: sgl.DefaultMaxSize,
	}

	app := &cli.App{
		Name:  "gd77",
		Usage: "A tool for flashing firmware onto GD-77 family transceivers",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "Enable more output",
				Required: false,
				Value:    false,
			},
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Load settings from a TOML file",
				Required: false,
			},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "flash",
			Usage:  "Flash an SGL firmware file. The radio must be in download mode.",
			Action: flashAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "firmware",
					Aliases: []string{"f"},
					Usage:   "Flash `FILE` instead of the default",
					Value:   flash.DefaultFirmware,
				},
				modelFlag,
				&cli.BoolFlag{
					Name:    "force",
					Aliases: []string{"F"},
					Usage:   "Flash even if the firmware was built for another model",
				},
			},
		},
		{
			Name:   "probe",
			Usage:  "Identify the connected transceiver",
			Action: probeAction,
		},
		{
			Name:      "info",
			Usage:     "Show the contents of an SGL file",
			ArgsUsage: "INPUT_FILE",
			Action:    infoAction,
			Flags:     []cli.Flag{maxSizeFlag},
		},
		{
			Name:      "extract",
			Usage:     "Unpack the payload from an SGL file",
			ArgsUsage: "INPUT_FILE",
			Action:    extractAction,
			Flags: []cli.Flag{
				maxSizeFlag,
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Write to `DIR` instead of next to INPUT_FILE",
				},
			},
		},
		{
			Name:      "pack",
			Usage:     "Build an SGL file from an extracted image or a raw payload",
			ArgsUsage: "INPUT_FILE OUTPUT_FILE",
			Action:    packAction,
			Flags: []cli.Flag{
				maxSizeFlag,
				modelFlag,
				&cli.UintFlag{
					Name:  "offset",
					Usage: "Header offset",
					Value: 0x100,
				},
				&cli.StringFlag{
					Name:  "xor",
					Usage: "Header XOR pair, as a 16-bit number",
					Value: "0x5ac3",
				},
			},
		},
		{
			Name:      "config",
			Usage:     "Write the current settings to a TOML file",
			ArgsUsage: "OUTPUT_FILE",
			Action:    configAction,
			Flags: []cli.Flag{
				modelFlag,
			},
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		os.Exit(exitCode(err))
	}
}
