// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

// Transport is the physical link to the bootloader. Reads block until
// something arrives or the timeout expires.
type Transport interface {
	Write(data []byte) (int, error)
	Read(maxLen int, timeout time.Duration) ([]byte, error)
	Close() error
}

const (
	packetType = 1
	headerLen  = 4

	// Responses are always read as this many bytes (plus the header), and
	// expected responses are zero-padded to it before comparison
	TransferLength = 0x26

	DefaultTimeout = 5000 * time.Millisecond
)

// MismatchError is returned when a response doesn't match what was
// expected.
type MismatchError struct {
	Expected []byte
	Actual   []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("unexpected response: got % x, expected % x", e.Actual, e.Expected)
}

func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

// Frame prepends the 4-byte packet header to body.
func Frame(body []byte) []byte {
	packet := make([]byte, headerLen+len(body))
	packet[0] = packetType
	packet[1] = 0
	binary.LittleEndian.PutUint16(packet[2:], uint16(len(body)))
	copy(packet[headerLen:], body)
	return packet
}

func padResponse(resp []byte) []byte {
	if len(resp) >= TransferLength {
		return resp
	}
	return append(append([]byte(nil), resp...), make([]byte, TransferLength-len(resp))...)
}

// link does one synchronous exchange at a time: a single write followed
// by a single bounded read.
type link struct {
	t       Transport
	timeout time.Duration
}

func (l *link) sendPacket(body []byte) error {
	packet := Frame(body)

	log.Verbose("Write\n", hex.Dump(packet))

	n, err := l.t.Write(packet)
	if err != nil {
		return errors.Wrap(err, "write")
	} else if n != len(packet) {
		return errors.New("Short write")
	}

	return nil
}

func (l *link) readPacket() ([]byte, error) {
	resp, err := l.t.Read(TransferLength+headerLen, l.timeout)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	log.Verbose("Read ", len(resp), "\n", hex.Dump(resp))

	if len(resp) < headerLen {
		return nil, errors.Errorf("Short read (%d bytes)", len(resp))
	}

	return resp[headerLen:], nil
}

// exchange sends body and returns the response with the echo header
// stripped.
func (l *link) exchange(body []byte) ([]byte, error) {
	if err := l.sendPacket(body); err != nil {
		return nil, err
	}

	return l.readPacket()
}

// check sends body and requires the response to match expected exactly.
func (l *link) check(body, expected []byte) error {
	resp, err := l.exchange(body)
	if err != nil {
		return err
	}

	want := padResponse(expected)
	if !bytes.Equal(resp, want) {
		return &MismatchError{Expected: want, Actual: resp}
	}

	return nil
}
