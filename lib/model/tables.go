// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package model

import (
	"fmt"
)

type Stage int

const (
	StageHandshake Stage = iota
	StageErase
	StageProgramEntry
)

// Command is one exchange with the bootloader. The response must match
// Expect exactly (after zero padding to the transfer length).
type Command struct {
	Name   string
	Send   []byte
	Expect []byte
	Stage  Stage
	// The last 4 bytes of Send are replaced with the session's EncodeKey
	WithKey bool
}

const Ack byte = 0x41

var (
	ackResponse = []byte{Ack}

	cmdDownload = Command{
		Name:   "Sending Download command",
		Send:   []byte("DOWNLOAD"),
		Expect: []byte("#UPDATE?"),
	}
	cmdAck = Command{
		Name:   "Sending ACK",
		Send:   []byte{Ack},
		Expect: ackResponse,
	}
	cmdFProg = Command{
		Name:   "Sending F-PROG command",
		Send:   []byte{'F', '-', 'P', 'R', 'O', 'G', 0xff, 0xff},
		Expect: ackResponse,
	}
	cmdVersion = Command{
		Name:   "Sending version",
		Send:   []byte("V1.00.01"),
		Expect: ackResponse,
	}
	cmdErase = Command{
		Name:   "Sending erase command",
		Send:   []byte{'F', '-', 'E', 'R', 'A', 'S', 'E', 0xff},
		Expect: ackResponse,
		Stage:  StageErase,
	}
	cmdPostErase = Command{
		Name:   "Send post erase command",
		Send:   []byte{Ack},
		Expect: ackResponse,
		Stage:  StageErase,
	}
	// The final byte really is 0x0f, not 0xff
	cmdProgram = Command{
		Name:   "Sending Program command",
		Send:   []byte{'P', 'R', 'O', 'G', 'R', 'A', 'M', 0x0f},
		Expect: ackResponse,
		Stage:  StageProgramEntry,
	}
)

// ProbeCommands are sent, in order, before the identification frame.
var ProbeCommands = []Command{cmdDownload, cmdAck}

// ProbeFrame elicits the model signature in the first 4 response bytes.
var ProbeFrame = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func padFF(s string, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = 0xff
	}
	copy(b, s)
	return b
}

func handshake(signature string, key EncodeKey, radio, radio2 []byte) []Command {
	keyCmd := Command{
		Name:    "Sending encryption key",
		Send:    append([]byte(signature), key[:]...),
		Expect:  []byte(signature),
		WithKey: true,
	}
	radioCmd := Command{
		Name:   "Sending radio modem number",
		Send:   radio,
		Expect: ackResponse,
	}
	radio2Cmd := Command{
		Name:   "Sending radio modem number 2",
		Send:   radio2,
		Expect: ackResponse,
	}

	return []Command{
		cmdDownload,
		cmdAck,
		keyCmd,
		cmdFProg,
		radioCmd,
		radio2Cmd,
		cmdVersion,
		cmdErase,
		cmdPostErase,
		cmdProgram,
	}
}

var infos = [...]*Info{
	Unknown: nil,
	GD77: {
		Name:      "GD-77",
		Signature: "DV01",
		EncodeKey: EncodeKey{0x61 + 0x00, 0x61 + 0x0c, 0x61 + 0x0d, 0x61 + 0x01},
		Tag:       0x1b,
		Handshake: handshake("DV01",
			EncodeKey{0x61 + 0x00, 0x61 + 0x0c, 0x61 + 0x0d, 0x61 + 0x01},
			padFF("SG-MD-760", 16), padFF("MD-760", 8)),
	},
	GD77S: {
		Name:      "GD-77S",
		Signature: "DV02",
		EncodeKey: EncodeKey{0x6d, 0x40, 0x7d, 0x63},
		Tag:       0x70,
		Handshake: handshake("DV02",
			EncodeKey{0x6d, 0x40, 0x7d, 0x63},
			padFF("SG-MD-730", 16), padFF("MD-730", 8)),
	},
	DM1801: {
		Name:      "DM-1801",
		Signature: "DV03",
		EncodeKey: EncodeKey{0x74, 0x21, 0x44, 0x39},
		Tag:       0x4f,
		Handshake: handshake("DV03",
			EncodeKey{0x74, 0x21, 0x44, 0x39},
			padFF("BF-DMR", 16), padFF("1801", 8)),
	},
	// RD-5R identifies itself as DV02, same as the GD-77S, so probing
	// can never select it. It has to be chosen explicitly.
	RD5R: {
		Name:      "RD-5R",
		Signature: "DV02",
		EncodeKey: EncodeKey{0x53, 0x36, 0x37, 0x62},
		Tag:       0x5c,
		Handshake: handshake("DV02",
			EncodeKey{0x53, 0x36, 0x37, 0x62},
			padFF("BF-5R", 16), padFF("BF-5R", 8)),
	},
}

// Adding a Model without a table entry (or vice versa) fails to compile.
var _ [len(infos) - int(numModels)]struct{}
var _ [int(numModels) - len(infos)]struct{}

func init() {
	for _, m := range All() {
		if err := validate(m, infos[m]); err != nil {
			panic(err)
		}
	}
}

func validate(m Model, info *Info) error {
	if info == nil {
		return fmt.Errorf("model %d has no table entry", m)
	}
	if len(info.Signature) != 4 {
		return fmt.Errorf("%s: signature must be 4 bytes", info.Name)
	}
	if len(info.Handshake) == 0 {
		return fmt.Errorf("%s: empty handshake", info.Name)
	}

	keyed := 0
	for _, c := range info.Handshake {
		if c.WithKey {
			keyed++
			if len(c.Send) < len(EncodeKey{}) {
				return fmt.Errorf("%s: '%s' too short to carry a key", info.Name, c.Name)
			}
		}
		if len(c.Expect) == 0 {
			return fmt.Errorf("%s: '%s' has no expected response", info.Name, c.Name)
		}
	}
	if keyed != 1 {
		return fmt.Errorf("%s: handshake must carry the key exactly once", info.Name)
	}

	last := info.Handshake[len(info.Handshake)-1]
	if last.Stage != StageProgramEntry {
		return fmt.Errorf("%s: handshake must end in program mode", info.Name)
	}

	return nil
}
