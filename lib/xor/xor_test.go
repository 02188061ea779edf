// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package xor

import (
	"bytes"
	"testing"
)

func TestApplyCyclic(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00}
	key := []byte{0x12, 0x34}

	got := Apply(data, key)
	expected := []byte{0x12, 0x34, 0x12, 0x34, 0x12}
	if !bytes.Equal(got, expected) {
		t.Fatalf("expected %x, got %x", expected, got)
	}

	if !bytes.Equal(data, make([]byte, 5)) {
		t.Fatal("Apply modified its input")
	}
}

func TestInverse(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	key := []byte{0xa5, 0x5a, 0xff}

	enc := Apply(data, key)
	if bytes.Equal(enc, data) {
		t.Fatal("encoding did nothing")
	}

	Decode(enc, key)
	if !bytes.Equal(enc, data) {
		t.Fatalf("round trip failed: '%s'", enc)
	}
}

func TestEmptyKey(t *testing.T) {
	data := []byte{1, 2, 3}
	Decode(data, nil)
	if !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatal("empty key changed data")
	}
}
