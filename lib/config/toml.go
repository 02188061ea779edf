// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"strconv"

	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/protocol"
	"github.com/usedbytes/gd77-tools/lib/sgl"
)

const (
	// Bootloader IDs shared by every supported model
	DefaultVID = 0x15a2
	DefaultPID = 0x0073

	DefaultInterface   = 0
	DefaultOutEndpoint = 0x02
	DefaultInEndpoint  = 0x81
)

type USB struct {
	VID         uint16 `toml:"vid"`
	PID         uint16 `toml:"pid"`
	Interface   int    `toml:"interface"`
	OutEndpoint int    `toml:"out_endpoint"`
	InEndpoint  int    `toml:"in_endpoint"`
}

func (u *USB) String() string {
	var s string
	s += "USB:\n"
	s += fmt.Sprintf("   VID:PID: 0x%04x:0x%04x\n", u.VID, u.PID)
	s += fmt.Sprintf("   Interface: %d\n", u.Interface)
	s += fmt.Sprintf("   Endpoints: out 0x%02x in 0x%02x\n", u.OutEndpoint, u.InEndpoint)
	return s
}

type Transfer struct {
	FrameWidth   int      `toml:"frame_width"`
	BlockSize    int      `toml:"block_size"`
	MaxFlashSize Size     `toml:"max_flash_size"`
	Timeout      Duration `toml:"timeout"`
}

func (t *Transfer) String() string {
	var s string
	s += "Transfer:\n"
	s += fmt.Sprintf("   FrameWidth: 0x%x\n", t.FrameWidth)
	s += fmt.Sprintf("   BlockSize: 0x%x\n", t.BlockSize)
	s += fmt.Sprintf("   MaxFlashSize: %s\n", t.MaxFlashSize)
	s += fmt.Sprintf("   Timeout: %s\n", t.Timeout)
	return s
}

func (t *Transfer) Config() protocol.TransferConfig {
	return protocol.TransferConfig{
		FrameWidth: t.FrameWidth,
		BlockSize:  t.BlockSize,
	}
}

type Config struct {
	// model.Unknown ("auto") means probe the device
	Model    model.Model `toml:"model"`
	Force    bool        `toml:"force"`
	USB      USB         `toml:"usb"`
	Transfer Transfer    `toml:"transfer"`
}

func (c *Config) String() string {
	var s string
	s += fmt.Sprintf("Model: %s\n", c.Model)
	s += fmt.Sprintf("Force: %s\n", strconv.FormatBool(c.Force))
	s += c.USB.String()
	s += c.Transfer.String()
	return s
}

func Default() *Config {
	tc := protocol.DefaultTransferConfig()

	return &Config{
		Model: model.Unknown,
		USB: USB{
			VID:         DefaultVID,
			PID:         DefaultPID,
			Interface:   DefaultInterface,
			OutEndpoint: DefaultOutEndpoint,
			InEndpoint:  DefaultInEndpoint,
		},
		Transfer: Transfer{
			FrameWidth:   tc.FrameWidth,
			BlockSize:    tc.BlockSize,
			MaxFlashSize: Size(sgl.DefaultMaxSize),
			Timeout:      Duration{protocol.DefaultTimeout},
		},
	}
}
