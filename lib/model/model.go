// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

type Model int

const (
	Unknown Model = iota
	GD77
	GD77S
	DM1801
	RD5R

	numModels
)

// EncodeKey is the per-model secret sent as the tail of the handshake's
// model command.
type EncodeKey [4]byte

func (k EncodeKey) String() string {
	return fmt.Sprintf("%02x %02x %02x %02x", k[0], k[1], k[2], k[3])
}

func (k EncodeKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(k[:])), nil
}

// UnmarshalText takes 8 hex digits, optionally space separated.
func (k *EncodeKey) UnmarshalText(text []byte) error {
	str := strings.ReplaceAll(strings.TrimSpace(string(text)), " ", "")

	raw, err := hex.DecodeString(str)
	if err != nil || len(raw) != len(k) {
		return fmt.Errorf("Can't parse key: '%s'. Need %d hex bytes", text, len(k))
	}

	copy(k[:], raw)
	return nil
}

type Info struct {
	Name string
	// Identification returned by the bootloader in response to the probe
	Signature string
	// Stock key for this model. Containers carry their own copy.
	EncodeKey EncodeKey
	// Byte 11 of an SGL container built for this model
	Tag byte
	// Ordered command/response exchanges that bring the bootloader from
	// idle into program mode
	Handshake []Command
}

func (m Model) Known() bool {
	return m > Unknown && m < numModels
}

func (m Model) Info() *Info {
	if !m.Known() {
		return nil
	}
	return infos[m]
}

func (m Model) String() string {
	if !m.Known() {
		return "Unknown"
	}
	return infos[m].Name
}

func (m Model) MarshalText() ([]byte, error) {
	if !m.Known() {
		return []byte("auto"), nil
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts any model name understood by Parse, plus "auto"
// (or an empty string) to mean the model should be probed.
func (m *Model) UnmarshalText(text []byte) error {
	str := strings.TrimSpace(string(text))
	if str == "" || strings.EqualFold(str, "auto") {
		*m = Unknown
		return nil
	}

	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func normalize(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", ""))
}

// Parse looks up a model by name. Matching ignores case and dashes, so
// "GD-77S", "gd77s" and "Gd-77s" are all GD77S.
func Parse(name string) (Model, error) {
	want := normalize(name)
	for _, m := range All() {
		if normalize(m.String()) == want {
			return m, nil
		}
	}

	return Unknown, fmt.Errorf("Model \"%s\" is unknown. Models are: %s", name, strings.Join(Names(), ", "))
}

// All returns every known model, in probe order.
func All() []Model {
	models := make([]Model, 0, numModels-1)
	for m := Unknown + 1; m < numModels; m++ {
		models = append(models, m)
	}
	return models
}

func Names() []string {
	var names []string
	for _, m := range All() {
		names = append(names, m.String())
	}
	return names
}

// FromSignature maps a bootloader identification string to a model. When
// several models share a signature the first one in table order wins.
func FromSignature(sig string) Model {
	for _, m := range All() {
		if infos[m].Signature == sig {
			return m
		}
	}
	return Unknown
}

func FromTag(tag byte) Model {
	for _, m := range All() {
		if infos[m].Tag == tag {
			return m
		}
	}
	return Unknown
}
