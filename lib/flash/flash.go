// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package flash

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/protocol"
	"github.com/usedbytes/gd77-tools/lib/sgl"
	"github.com/usedbytes/log"
)

const DefaultFirmware = "firmware.sgl"

type Options struct {
	Firmware string
	// model.Unknown to probe the device
	Model model.Model
	// Flash even if the container was built for a different model
	Force bool

	MaxSize  int
	Timeout  time.Duration
	Transfer protocol.TransferConfig
	Progress protocol.ProgressFunc
}

func DefaultOptions() Options {
	return Options{
		Firmware: DefaultFirmware,
		MaxSize:  sgl.DefaultMaxSize,
		Timeout:  protocol.DefaultTimeout,
		Transfer: protocol.DefaultTransferConfig(),
	}
}

// Opener connects to the device. It's only called once the firmware file
// has been loaded and checked.
type Opener func() (protocol.Transport, error)

// LoadContainer reads and decodes a firmware file. Only SGL containers are
// accepted. A file without the .sgl extension is assumed to be a raw
// image unless it starts with the SGL magic.
func LoadContainer(filename string, maxSize int) (*sgl.Container, error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Firmware file \"%s\"", filename)
	}

	if !strings.EqualFold(filepath.Ext(filename), ".sgl") && !sgl.HasMagic(raw) {
		return nil, failure.Errorf(failure.Format, "Firmware file \"%s\" is an unencrypted binary", filename)
	}

	c, err := sgl.Decode(raw, maxSize)
	if err != nil {
		return nil, errors.Wrapf(err, "Firmware file \"%s\"", filename)
	}

	log.Println(" - Firmware file confirmed as SGL")
	log.Verboseln(c)

	return c, nil
}

// SelectModel returns m if it's known, otherwise it probes the device.
func SelectModel(t protocol.Transport, m model.Model, timeout time.Duration) (model.Model, error) {
	if m.Known() {
		return m, nil
	}

	probed, err := protocol.Probe(t, timeout)
	if err != nil {
		return model.Unknown, err
	}

	if !probed.Known() {
		return model.Unknown, failure.New(failure.Protocol, "Failed to detect your transceiver model")
	}

	log.Println(" - Detected model:", probed)

	return probed, nil
}

// CheckModel makes sure the container was built for m. With force set, a
// mismatch is only a warning.
func CheckModel(c *sgl.Container, m model.Model, force bool) error {
	info := m.Info()
	if info == nil {
		return failure.Errorf(failure.ModelMismatch, "Model %s has no firmware tag", m)
	}

	if c.ModelTag == info.Tag {
		return nil
	}

	err := failure.Errorf(failure.ModelMismatch,
		"The firmware (tag 0x%02x, %s) doesn't match the transceiver model %s (tag 0x%02x)",
		c.ModelTag, c.Model(), m, info.Tag)
	if !force {
		return err
	}

	log.Println("WARNING:", err, "- flashing anyway")

	return nil
}

// Run flashes opts.Firmware onto the device returned by open. The device
// is closed before Run returns, whatever the outcome.
func Run(opts Options, open Opener) error {
	c, err := LoadContainer(opts.Firmware, opts.MaxSize)
	if err != nil {
		return err
	}

	if err := opts.Transfer.Validate(); err != nil {
		return err
	}

	t, err := open()
	if err != nil {
		return failure.Wrap(failure.DeviceNotFound, err, "Can't find your transceiver")
	} else if t == nil {
		return failure.New(failure.DeviceNotFound, "Can't find your transceiver")
	}
	defer t.Close()

	m, err := SelectModel(t, opts.Model, opts.Timeout)
	if err != nil {
		return err
	}

	err = CheckModel(c, m, opts.Force)
	if err != nil {
		return err
	}

	log.Printf(" - Now flashing your %s with \"%s\"\n", m, opts.Firmware)

	s, err := protocol.NewSession(t, m, c.Key, protocol.WithTimeout(opts.Timeout))
	if err != nil {
		return err
	}

	err = s.Handshake()
	if err != nil {
		return errors.Wrap(err, "Error while sending initial commands")
	}

	err = s.Program(c.Payload, opts.Transfer, opts.Progress)
	if err != nil {
		return errors.Wrap(err, "Error while sending data")
	}

	log.Printf("Firmware update complete. Please reboot the %s.\n", m)

	return nil
}
