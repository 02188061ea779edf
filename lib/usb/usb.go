// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package usb

import (
	"context"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/config"
	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/log"
)

var closedErr error = errors.New("transport closed")

// Transport talks to the bootloader over a pair of bulk endpoints. It
// implements protocol.Transport.
type Transport struct {
	bg    context.Context
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	outEp *gousb.OutEndpoint
	inEp  *gousb.InEndpoint

	closed bool
}

// endpoint numbers in the config may include the direction bit
func epNum(ep int) int {
	return ep & 0x0f
}

// Open finds the first device matching opts. A missing device is reported
// as failure.DeviceNotFound.
func Open(opts *config.USB) (*Transport, error) {
	t := &Transport{
		bg:  context.Background(),
		ctx: gousb.NewContext(),
	}

	log.Verbosef("Open %04x:%04x\n", opts.VID, opts.PID)

	var err error
	t.dev, err = t.ctx.OpenDeviceWithVIDPID(gousb.ID(opts.VID), gousb.ID(opts.PID))
	if err != nil {
		t.Close()
		return nil, failure.Wrapf(failure.DeviceNotFound, err, "opening %04x:%04x", opts.VID, opts.PID)
	} else if t.dev == nil {
		t.Close()
		return nil, failure.Errorf(failure.DeviceNotFound, "no device %04x:%04x. Is the radio in download mode?", opts.VID, opts.PID)
	}

	err = t.dev.SetAutoDetach(true)
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "auto detach")
	}

	num, err := t.dev.ActiveConfigNum()
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "active config")
	}

	t.cfg, err = t.dev.Config(num)
	if err != nil {
		t.Close()
		return nil, errors.Wrapf(err, "config %d", num)
	}

	t.intf, err = t.cfg.Interface(opts.Interface, 0)
	if err != nil {
		t.Close()
		return nil, errors.Wrapf(err, "interface %d", opts.Interface)
	}

	t.outEp, err = t.intf.OutEndpoint(epNum(opts.OutEndpoint))
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "out endpoint")
	}

	t.inEp, err = t.intf.InEndpoint(epNum(opts.InEndpoint))
	if err != nil {
		t.Close()
		return nil, errors.Wrap(err, "in endpoint")
	}

	log.Verboseln(t.intf)
	log.Verboseln(t.inEp)
	log.Verboseln(t.outEp)

	return t, nil
}

func (t *Transport) Write(data []byte) (int, error) {
	if t.closed {
		return 0, closedErr
	}

	return t.outEp.Write(data)
}

func (t *Transport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	if t.closed {
		return nil, closedErr
	}

	to, cancel := context.WithTimeout(t.bg, timeout)
	defer cancel()

	buf := make([]byte, maxLen)
	n, err := t.inEp.ReadContext(to, buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

func (t *Transport) Close() error {
	if t.closed {
		return nil
	}

	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.cfg != nil {
		t.cfg.Close()
		t.cfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}

	t.closed = true

	return nil
}
