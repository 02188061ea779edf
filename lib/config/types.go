// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration which reads and writes as text, "5s" or
// "5000ms". A bare number is taken as milliseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	str := strings.TrimSpace(string(text))

	if ms, err := strconv.Atoi(str); err == nil {
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}

	parsed, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("Can't parse duration: '%s'", str)
	}
	if parsed < 0 {
		return fmt.Errorf("Negative duration: '%s'", str)
	}

	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Size is a byte count which may be written in hex ("0x7b000") as well as
// decimal.
type Size int

func (s *Size) UnmarshalText(text []byte) error {
	val, err := strconv.ParseInt(strings.TrimSpace(string(text)), 0, 32)
	if err != nil || val < 0 {
		return fmt.Errorf("Can't parse size: '%s'", text)
	}

	*s = Size(val)
	return nil
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s Size) String() string {
	return fmt.Sprintf("0x%x", int(s))
}
