// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package flash

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/protocol"
	"github.com/usedbytes/gd77-tools/lib/sgl"
)

// fakeRadio is a bootloader which can be probed and then flashed, like
// the real thing.
type fakeRadio struct {
	sig string
	key model.EncodeKey
	hs  []model.Command

	step      int
	handshook bool
	mem       []byte

	writes  int
	pending []byte
	closed  bool
}

func newFakeRadio(m model.Model) *fakeRadio {
	info := m.Info()
	return &fakeRadio{
		sig: info.Signature,
		key: info.EncodeKey,
		hs:  info.Handshake,
	}
}

func (r *fakeRadio) respond(body []byte) []byte {
	if r.handshook {
		if len(body) == 8 && bytes.HasPrefix(body, []byte("END\xff")) {
			return []byte{model.Ack}
		}
		addr := binary.BigEndian.Uint32(body)
		if int(addr) != len(r.mem) {
			return []byte{0x00}
		}
		r.mem = append(r.mem, body[6:]...)
		return []byte{model.Ack}
	}

	if r.step == 2 && bytes.Equal(body, model.ProbeFrame) {
		r.step = 0
		return []byte(r.sig)
	}

	c := r.hs[r.step]
	want := c.Send
	if c.WithKey {
		want = append([]byte(r.sig), r.key[:]...)
	}
	if !bytes.Equal(body, want) {
		r.step = 0
		return []byte("NAK")
	}

	r.step++
	r.handshook = r.step == len(r.hs)
	return c.Expect
}

func (r *fakeRadio) Write(data []byte) (int, error) {
	r.writes++
	resp := r.respond(data[4:])
	r.pending = append([]byte{0x03, 0x00, protocol.TransferLength, 0x00}, resp...)
	r.pending = append(r.pending, make([]byte, protocol.TransferLength-len(resp))...)
	return len(data), nil
}

func (r *fakeRadio) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	if r.pending == nil {
		return nil, errors.New("timeout")
	}
	resp := r.pending
	r.pending = nil
	return resp, nil
}

func (r *fakeRadio) Close() error {
	r.closed = true
	return nil
}

func (r *fakeRadio) opener() Opener {
	return func() (protocol.Transport, error) {
		return r, nil
	}
}

func writeFirmware(t *testing.T, dir, name string, m model.Model, payload []byte) string {
	t.Helper()

	info := m.Info()
	raw, err := sgl.Encode(payload, info.EncodeKey, [2]byte{0x12, 0x34}, info.Tag, 0x80)
	if err != nil {
		t.Fatal(err)
	}

	fname := filepath.Join(dir, name)
	if err := ioutil.WriteFile(fname, raw, 0644); err != nil {
		t.Fatal(err)
	}

	return fname
}

func tempDir(t *testing.T) string {
	t.Helper()

	dir, err := ioutil.TempDir("", "gd77-flash")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func testPayload(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i*13 + 7)
	}
	return buf
}

func TestRun(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	for _, m := range []model.Model{model.GD77, model.GD77S, model.DM1801} {
		payload := testPayload(0x1234)
		radio := newFakeRadio(m)

		var last protocol.Progress
		opts := DefaultOptions()
		opts.Firmware = writeFirmware(t, dir, "firmware.sgl", m, payload)
		opts.Progress = func(p protocol.Progress) {
			last = p
		}

		if err := Run(opts, radio.opener()); err != nil {
			t.Fatalf("%s: %v", m, err)
		}

		if !bytes.Equal(radio.mem, payload) {
			t.Errorf("%s: flashed image doesn't match payload", m)
		}
		if !radio.closed {
			t.Errorf("%s: transport not closed", m)
		}
		if !last.Last() || last.TotalBlocks != 5 {
			t.Errorf("%s: unexpected final progress %+v", m, last)
		}
	}
}

func TestRunExplicitModel(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	// Probing would pick the GD-77S
	payload := testPayload(100)
	radio := newFakeRadio(model.RD5R)

	opts := DefaultOptions()
	opts.Firmware = writeFirmware(t, dir, "rd5r.sgl", model.RD5R, payload)
	opts.Model = model.RD5R

	if err := Run(opts, radio.opener()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(radio.mem, payload) {
		t.Error("flashed image doesn't match payload")
	}

	// 10 handshake steps, 4 data frames and a checksum. No probe.
	if radio.writes != 15 {
		t.Errorf("expected 15 writes, got %d", radio.writes)
	}
}

func TestRunModelMismatch(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	payload := testPayload(100)
	fname := writeFirmware(t, dir, "dm1801.sgl", model.DM1801, payload)

	radio := newFakeRadio(model.GD77)
	opts := DefaultOptions()
	opts.Firmware = fname

	err := Run(opts, radio.opener())
	if !failure.Is(err, failure.ModelMismatch) {
		t.Fatalf("expected model mismatch, got %v", err)
	}
	if radio.writes != 3 {
		t.Errorf("expected only the probe to be sent, got %d writes", radio.writes)
	}
	if !radio.closed {
		t.Error("transport not closed")
	}

	// Forced, with a radio that accepts the container's key
	radio = newFakeRadio(model.GD77)
	radio.key = model.DM1801.Info().EncodeKey
	opts.Force = true

	if err := Run(opts, radio.opener()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(radio.mem, payload) {
		t.Error("flashed image doesn't match payload")
	}
}

func TestRunUnknownDevice(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	radio := newFakeRadio(model.GD77)
	radio.sig = "XXXX"

	opts := DefaultOptions()
	opts.Firmware = writeFirmware(t, dir, "firmware.sgl", model.GD77, testPayload(10))

	err := Run(opts, radio.opener())
	if !failure.Is(err, failure.Protocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if radio.handshook {
		t.Error("handshake should not have been attempted")
	}
}

func TestRunNoDevice(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	opts := DefaultOptions()
	opts.Firmware = writeFirmware(t, dir, "firmware.sgl", model.GD77, testPayload(10))

	err := Run(opts, func() (protocol.Transport, error) {
		return nil, errors.New("no such device")
	})
	if !failure.Is(err, failure.DeviceNotFound) {
		t.Errorf("expected device not found, got %v", err)
	}

	err = Run(opts, func() (protocol.Transport, error) {
		return nil, nil
	})
	if !failure.Is(err, failure.DeviceNotFound) {
		t.Errorf("expected device not found, got %v", err)
	}
}

func TestRunBadFileDoesntConnect(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	opened := false
	open := func() (protocol.Transport, error) {
		opened = true
		return newFakeRadio(model.GD77), nil
	}

	opts := DefaultOptions()
	opts.Firmware = filepath.Join(dir, "missing.sgl")
	if err := Run(opts, open); err == nil {
		t.Error("expected error for missing file")
	}

	opts.Firmware = writeFirmware(t, dir, "big.sgl", model.GD77, testPayload(0x2000))
	opts.MaxSize = 0x1000
	if err := Run(opts, open); !failure.Is(err, failure.Capacity) {
		t.Errorf("expected capacity error, got %v", err)
	}

	if opened {
		t.Error("device opened for a bad firmware file")
	}
}

func TestLoadContainer(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	payload := testPayload(64)

	raw := filepath.Join(dir, "firmware.bin")
	if err := ioutil.WriteFile(raw, payload, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadContainer(raw, 0); !failure.Is(err, failure.Format) {
		t.Errorf("expected format error for raw binary, got %v", err)
	}

	// Wrong extension, but it's really an SGL
	fname := writeFirmware(t, dir, "firmware.bin", model.GD77S, payload)
	c, err := LoadContainer(fname, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c.Model() != model.GD77S || !bytes.Equal(c.Payload, payload) {
		t.Errorf("unexpected container %v", c)
	}

	// Right extension, but not an SGL
	bad := filepath.Join(dir, "bad.sgl")
	if err := ioutil.WriteFile(bad, payload, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadContainer(bad, 0); !failure.Is(err, failure.Format) {
		t.Errorf("expected format error, got %v", err)
	}
}

func TestCheckModel(t *testing.T) {
	c := &sgl.Container{ModelTag: model.GD77S.Info().Tag}

	if err := CheckModel(c, model.GD77S, false); err != nil {
		t.Error(err)
	}
	if err := CheckModel(c, model.RD5R, false); !failure.Is(err, failure.ModelMismatch) {
		t.Errorf("expected model mismatch, got %v", err)
	}
	if err := CheckModel(c, model.RD5R, true); err != nil {
		t.Errorf("force should allow mismatch, got %v", err)
	}
	if err := CheckModel(c, model.Unknown, true); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestSelectModel(t *testing.T) {
	radio := newFakeRadio(model.DM1801)

	m, err := SelectModel(radio, model.GD77, 0)
	if err != nil || m != model.GD77 {
		t.Errorf("expected GD-77 without probing, got %s %v", m, err)
	}
	if radio.writes != 0 {
		t.Error("known model shouldn't probe")
	}

	m, err = SelectModel(radio, model.Unknown, 0)
	if err != nil || m != model.DM1801 {
		t.Errorf("expected DM-1801, got %s %v", m, err)
	}
}
