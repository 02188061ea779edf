// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package sgl

import (
	"fmt"
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/log"
)

// Largest payload any supported model can hold
const DefaultMaxSize = 0x7b000

var crct = crc16.MakeTable(crc16.CRC16_XMODEM)

type Container struct {
	Payload  []byte
	Key      model.EncodeKey
	ModelTag byte

	Offset  uint16
	XORPair [2]byte
}

// Model returns the model the container was built for, according to its
// tag byte.
func (c *Container) Model() model.Model {
	return model.FromTag(c.ModelTag)
}

// Fingerprint is the CRC-16/XMODEM of the payload. It's only used to tell
// images apart, the device never sees it.
func (c *Container) Fingerprint() uint16 {
	return crc16.Checksum(c.Payload, crct)
}

func (c Container) String() string {
	str := ""
	str += fmt.Sprintf("Model tag:    0x%02x (%s)\n", c.ModelTag, c.Model())
	str += fmt.Sprintf("Payload size: 0x%x (%d)\n", len(c.Payload), len(c.Payload))
	str += fmt.Sprintf("Encode key:   %s\n", c.Key)
	str += fmt.Sprintf("Header:       offset 0x%04x, xor %02x %02x\n", c.Offset, c.XORPair[0], c.XORPair[1])
	str += fmt.Sprintf("Fingerprint:  %04x", c.Fingerprint())
	return str
}

// Decode extracts the payload, encode key and model tag from an SGL
// container. maxSize bounds the payload length; pass 0 for DefaultMaxSize.
func Decode(raw []byte, maxSize int) (*Container, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	ch, err := newContainerHeader(raw)
	if err != nil {
		return nil, err
	}

	dh, err := newDecodedHeader(raw, ch)
	if err != nil {
		return nil, err
	}

	log.Verbosef("SGL offset 0x%04x xor %02x %02x, %s\n", ch.offset, ch.xorPair[0], ch.xorPair[1], dh)

	length := int64(dh.length)
	if length == 0 {
		return nil, failure.New(failure.Format, "Header declares an empty payload")
	}

	available := int64(len(raw) - containerHdrLen)
	if length > available {
		return nil, failure.Errorf(failure.Capacity,
			"Declared payload length %d exceeds the %d bytes in the file", length, available)
	}

	if length > int64(maxSize) {
		return nil, failure.Errorf(failure.Capacity,
			"Firmware too large: %d bytes, limit is %d", length, maxSize)
	}

	payload := make([]byte, length)
	copy(payload, raw[int64(len(raw))-length:])

	return &Container{
		Payload:  payload,
		Key:      dh.key,
		ModelTag: ch.modelTag,
		Offset:   ch.offset,
		XORPair:  ch.xorPair,
	}, nil
}

func Load(filename string, maxSize int) (*Container, error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Reading firmware file")
	}

	return Decode(raw, maxSize)
}

// minOffset keeps the decoded header clear of the container header.
const minOffset = containerHdrLen - decodedHdrSkip

// Encode builds a container around payload. It is the inverse of Decode:
// the header block is placed at offset+6 and the payload at the end.
func Encode(payload []byte, key model.EncodeKey, xorPair [2]byte, modelTag byte, offset uint16) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	if offset < minOffset {
		return nil, errors.Errorf("offset 0x%x overlaps the container header, minimum is 0x%x", offset, minOffset)
	}

	ch := &containerHeader{
		offset:   offset,
		xorPair:  xorPair,
		modelTag: modelTag,
	}

	dh := &decodedHeader{
		length: uint32(len(payload)),
		key:    key,
	}

	start := ch.decodedStart()
	raw := make([]byte, start+decodedHdrLen+len(payload))
	ch.put(raw)
	copy(raw[start:], dh.encode(xorPair))
	copy(raw[start+decodedHdrLen:], payload)

	return raw, nil
}

// Encode re-packs the container with its own header fields.
func (c *Container) Encode() ([]byte, error) {
	return Encode(c.Payload, c.Key, c.XORPair, c.ModelTag, c.Offset)
}
