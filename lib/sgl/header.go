// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package sgl

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/xor"
	"github.com/usedbytes/log"
)

const (
	Magic = "SGL!"

	modelTagOffset    = 0x0b
	headerFieldOffset = 0x0c
	containerHdrLen   = 0x10

	// The decoded header starts this far past the offset stored in the
	// container header
	decodedHdrSkip = 6
	decodedHdrLen  = 512
	keyOffset      = 0x5d
)

// containerHeader is the fixed plaintext framing at the start of the file.
// The offset and XOR pair are themselves XOR'd with the magic.
type containerHeader struct {
	offset   uint16
	xorPair  [2]byte
	modelTag byte
}

func HasMagic(raw []byte) bool {
	return len(raw) >= len(Magic) && bytes.Equal(raw[:len(Magic)], []byte(Magic))
}

func newContainerHeader(raw []byte) (*containerHeader, error) {
	if !HasMagic(raw) {
		return nil, failure.New(failure.Format, "SGL! header is missing")
	}

	if len(raw) < containerHdrLen {
		return nil, failure.Errorf(failure.Format, "Truncated container header (%d bytes)", len(raw))
	}

	var fields [4]byte
	for i := range fields {
		fields[i] = raw[headerFieldOffset+i] ^ Magic[i]
	}

	return &containerHeader{
		offset:   binary.LittleEndian.Uint16(fields[:2]),
		xorPair:  [2]byte{fields[2], fields[3]},
		modelTag: raw[modelTagOffset],
	}, nil
}

func (ch *containerHeader) decodedStart() int {
	return int(ch.offset) + decodedHdrSkip
}

func (ch *containerHeader) put(raw []byte) {
	binary.LittleEndian.PutUint16(raw[headerFieldOffset:], ch.offset)
	raw[headerFieldOffset+2] = ch.xorPair[0]
	raw[headerFieldOffset+3] = ch.xorPair[1]
	for i := 0; i < 4; i++ {
		raw[headerFieldOffset+i] ^= Magic[i]
	}
	raw[modelTagOffset] = ch.modelTag
	copy(raw, Magic)
}

// decodedHeader is the 512-byte metadata block, after removing the XOR
// pair.
type decodedHeader struct {
	length uint32
	key    model.EncodeKey

	rawData []byte
}

func newDecodedHeader(raw []byte, ch *containerHeader) (*decodedHeader, error) {
	start := ch.decodedStart()
	end := start + decodedHdrLen
	if end > len(raw) {
		return nil, failure.Errorf(failure.Format,
			"Header block at 0x%x runs past end of file (%d bytes)", start, len(raw))
	}

	hdr := &decodedHeader{
		rawData: xor.Apply(raw[start:end], ch.xorPair[:]),
	}

	hdr.length = binary.LittleEndian.Uint32(hdr.rawData[0:4])
	copy(hdr.key[:], hdr.rawData[keyOffset:keyOffset+len(hdr.key)])

	log.Verbosef("Decoded header:\n%s\n", hex.Dump(hdr.rawData))

	return hdr, nil
}

func (dh *decodedHeader) encode(xorPair [2]byte) []byte {
	raw := make([]byte, decodedHdrLen)
	copy(raw, dh.rawData)
	binary.LittleEndian.PutUint32(raw[0:4], dh.length)
	copy(raw[keyOffset:], dh.key[:])
	xor.Decode(raw, xorPair[:])
	return raw
}

func (dh decodedHeader) String() string {
	return fmt.Sprintf("length: %d, key: %s", dh.length, dh.key)
}
