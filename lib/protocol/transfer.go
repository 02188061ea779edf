// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/log"
)

const (
	DefaultFrameWidth = 0x20
	DefaultBlockSize  = 0x400

	dataHeaderLen = 6
)

var checksumTag = [4]byte{'E', 'N', 'D', 0xff}

type TransferConfig struct {
	// Payload bytes per data frame
	FrameWidth int
	// Bytes covered by each checksum frame. Must be a multiple of
	// FrameWidth.
	BlockSize int
}

func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		FrameWidth: DefaultFrameWidth,
		BlockSize:  DefaultBlockSize,
	}
}

func (tc TransferConfig) Validate() error {
	if tc.FrameWidth <= 0 || tc.FrameWidth > TransferLength-dataHeaderLen {
		return errors.Errorf("frame width %d out of range (1-%d)", tc.FrameWidth, TransferLength-dataHeaderLen)
	}
	if tc.BlockSize <= 0 || tc.BlockSize%tc.FrameWidth != 0 {
		return errors.Errorf("block size %d must be a positive multiple of frame width %d", tc.BlockSize, tc.FrameWidth)
	}
	return nil
}

// Progress is advisory only. It's reported after each checksum frame is
// acknowledged.
type Progress struct {
	Block       int
	TotalBlocks int
	BytesSent   int
	TotalBytes  int
}

func (p Progress) Last() bool {
	return p.BytesSent == p.TotalBytes
}

type ProgressFunc func(Progress)

// Checksum is the 32-bit wrapping sum of buf[start:end].
func Checksum(buf []byte, start, end int) uint32 {
	var sum uint32
	for _, v := range buf[start:end] {
		sum += uint32(v)
	}
	return sum
}

func dataFrame(addr uint32, data []byte) []byte {
	frame := make([]byte, dataHeaderLen+len(data))
	binary.BigEndian.PutUint32(frame[0:], addr)
	binary.BigEndian.PutUint16(frame[4:], uint16(len(data)))
	copy(frame[dataHeaderLen:], data)
	return frame
}

func checksumFrame(sum uint32) []byte {
	frame := make([]byte, 8)
	copy(frame, checksumTag[:])
	binary.LittleEndian.PutUint32(frame[4:], sum)
	return frame
}

func (s *Session) ack(frame []byte) error {
	return s.check(frame, []byte{model.Ack})
}

// Program streams payload to the device. The session must have completed
// its handshake. Every data frame and every checksum frame must be
// acknowledged; the first one that isn't ends the session. A bad
// TransferConfig or an empty payload is rejected before anything is sent,
// and the session stays ready to program.
func (s *Session) Program(payload []byte, tc TransferConfig, progress ProgressFunc) error {
	if s.state != ReadyToProgram {
		return s.stateErr(ReadyToProgram)
	}

	if err := tc.Validate(); err != nil {
		return failure.Wrap(failure.Transfer, err, "transfer config")
	}

	if len(payload) == 0 {
		return failure.New(failure.Transfer, "empty payload")
	}

	s.state = Programming

	total := len(payload)
	totalBlocks := (total + tc.BlockSize - 1) / tc.BlockSize
	blockStart := 0

	for addr := 0; addr < total; {
		if addr%tc.BlockSize == 0 {
			blockStart = addr
		}

		n := tc.FrameWidth
		if addr+n > total {
			n = total - addr
		}

		if err := s.ack(dataFrame(uint32(addr), payload[addr:addr+n])); err != nil {
			return s.fail(failure.Transfer, err, fmt.Sprintf("sending data at 0x%08x", addr))
		}
		addr += n

		if addr%tc.BlockSize != 0 && addr != total {
			continue
		}

		sum := Checksum(payload, blockStart, addr)
		log.Verbosef("Checksum 0x%08x-0x%08x: %08x\n", blockStart, addr, sum)

		if err := s.ack(checksumFrame(sum)); err != nil {
			return s.fail(failure.Transfer, err, fmt.Sprintf("sending checksum for 0x%08x-0x%08x", blockStart, addr))
		}

		if progress != nil {
			progress(Progress{
				Block:       (addr + tc.BlockSize - 1) / tc.BlockSize,
				TotalBlocks: totalBlocks,
				BytesSent:   addr,
				TotalBytes:  total,
			})
		}
	}

	s.state = Complete

	return nil
}
