// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package protocol

import (
	"fmt"
	"time"

	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/log"
)

type State int

const (
	Disconnected State = iota
	Identified
	Handshaking
	Erasing
	ReadyToProgram
	Programming
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Identified:
		return "identified"
	case Handshaking:
		return "handshaking"
	case Erasing:
		return "erasing"
	case ReadyToProgram:
		return "ready to program"
	case Programming:
		return "programming"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return "???"
}

func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// Session is a single flashing attempt. Once it reaches Complete or Failed
// it can't be used again; a new attempt needs a power cycle and a new
// Session.
type Session struct {
	link

	model model.Model
	key   model.EncodeKey
	state State
}

type SessionOption func(*Session)

func WithTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewSession(t Transport, m model.Model, key model.EncodeKey, opts ...SessionOption) (*Session, error) {
	if t == nil {
		return nil, failure.New(failure.DeviceNotFound, "no transport")
	}

	s := &Session{
		link: link{
			t:       t,
			timeout: DefaultTimeout,
		},
		model: m,
		key:   key,
		state: Disconnected,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Model() model.Model {
	return s.model
}

func (s *Session) fail(kind failure.Kind, err error, msg string) error {
	s.state = Failed
	return failure.Wrap(kind, err, msg)
}

func (s *Session) stateErr(want State) error {
	if s.state == Failed {
		return failure.New(failure.Protocol, "session has already failed")
	}
	return failure.Errorf(failure.Protocol, "session is %s, expected %s", s.state, want)
}

// Handshake runs the model's command table, which erases the flash and
// leaves the bootloader ready to receive data. Any mismatch is fatal; the
// device can't resume from part-way through.
func (s *Session) Handshake() error {
	if s.state != Disconnected {
		return s.stateErr(Disconnected)
	}

	info := s.model.Info()
	if info == nil {
		s.state = Failed
		return failure.Errorf(failure.Protocol, "no handshake for model %s", s.model)
	}
	s.state = Identified

	if s.key != info.EncodeKey {
		log.Verbosef("Container key %s differs from stock %s key %s\n", s.key, info.Name, info.EncodeKey)
	}

	s.state = Handshaking
	for i, c := range info.Handshake {
		log.Println(" - " + c.Name)

		if c.Stage == model.StageErase {
			s.state = Erasing
		}

		send := c.Send
		if c.WithKey {
			send = append([]byte(nil), c.Send...)
			copy(send[len(send)-len(s.key):], s.key[:])
		}

		if err := s.check(send, c.Expect); err != nil {
			return s.fail(failure.Protocol, err, fmt.Sprintf("handshake step %d (%s)", i, c.Name))
		}

		log.Verbosef("Step %d (%s) OK\n", i, c.Name)
	}

	s.state = ReadyToProgram

	return nil
}
