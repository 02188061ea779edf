// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package protocol

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/model"
)

var errTimeout = errors.New("timeout")

// fakeTransport hands every written body to respond, and returns its answer
// (framed like the real device) on the next Read.
type fakeTransport struct {
	respond func(body []byte) []byte

	writes   [][]byte
	pending  []byte
	readLens []int
	timeouts []time.Duration

	writeErr error
	readErr  error
	closed   bool
}

func (f *fakeTransport) Write(data []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}

	f.writes = append(f.writes, append([]byte(nil), data...))

	resp := f.respond(data[headerLen:])
	if resp == nil {
		f.pending = nil
		return len(data), nil
	}

	f.pending = make([]byte, headerLen+TransferLength)
	f.pending[0] = 0x03
	binary.LittleEndian.PutUint16(f.pending[2:], TransferLength)
	copy(f.pending[headerLen:], resp)

	return len(data), nil
}

func (f *fakeTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	f.readLens = append(f.readLens, maxLen)
	f.timeouts = append(f.timeouts, timeout)

	if f.readErr != nil {
		return nil, f.readErr
	}

	if f.pending == nil {
		return nil, errTimeout
	}

	resp := f.pending
	f.pending = nil
	if len(resp) > maxLen {
		resp = resp[:maxLen]
	}
	return resp, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// body strips the packet header from the i'th write.
func (f *fakeTransport) body(i int) []byte {
	return f.writes[i][headerLen:]
}

// fakeBootloader behaves like a device in download mode: it checks the
// handshake step by step, then collects data frames and verifies
// checksum frames.
type fakeBootloader struct {
	info *model.Info
	key  model.EncodeKey

	step int

	mem        []byte
	sinceCheck []byte

	frames         int
	dataFrames     int
	checksumFrames int
	checksumLens   []int
	badChecksums   int

	// 1-based index of the transfer frame to NAK; 0 to never NAK
	nakAt int
}

func newFakeBootloader(m model.Model, key model.EncodeKey) *fakeBootloader {
	return &fakeBootloader{
		info: m.Info(),
		key:  key,
	}
}

func (b *fakeBootloader) probe(body []byte) []byte {
	for _, c := range model.ProbeCommands {
		if bytes.Equal(body, c.Send) {
			return c.Expect
		}
	}
	if bytes.Equal(body, model.ProbeFrame) {
		return []byte(b.info.Signature)
	}
	return []byte{0x00}
}

func (b *fakeBootloader) respond(body []byte) []byte {
	if b.step < len(b.info.Handshake) {
		c := b.info.Handshake[b.step]
		b.step++

		want := c.Send
		if c.WithKey {
			want = append([]byte(b.info.Signature), b.key[:]...)
		}

		if !bytes.Equal(body, want) {
			return []byte("NAK")
		}
		return c.Expect
	}

	b.frames++
	if b.frames == b.nakAt {
		return []byte{0x15}
	}

	if len(body) == 8 && bytes.Equal(body[:4], checksumTag[:]) {
		b.checksumFrames++
		b.checksumLens = append(b.checksumLens, len(b.sinceCheck))

		sum := binary.LittleEndian.Uint32(body[4:])
		expected := Checksum(b.sinceCheck, 0, len(b.sinceCheck))
		b.sinceCheck = nil
		if sum != expected {
			b.badChecksums++
			return []byte{0x00}
		}
		return []byte{model.Ack}
	}

	b.dataFrames++
	addr := binary.BigEndian.Uint32(body[0:])
	length := int(binary.BigEndian.Uint16(body[4:]))
	data := body[dataHeaderLen:]
	if int(addr) != len(b.mem) || length != len(data) {
		return []byte{0x00}
	}

	b.mem = append(b.mem, data...)
	b.sinceCheck = append(b.sinceCheck, data...)

	return []byte{model.Ack}
}
