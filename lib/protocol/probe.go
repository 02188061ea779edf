// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package protocol

import (
	"time"

	"github.com/usedbytes/gd77-tools/lib/failure"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/log"
)

const signatureLen = 4

// Probe asks the bootloader to identify itself. A device that answers
// the identification commands with anything unexpected, or with an
// unknown signature, is reported as model.Unknown without an error. Only
// transport failures are returned as errors.
func Probe(t Transport, timeout time.Duration) (model.Model, error) {
	if t == nil {
		return model.Unknown, failure.New(failure.DeviceNotFound, "no transport")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	l := &link{t: t, timeout: timeout}

	for _, c := range model.ProbeCommands {
		err := l.check(c.Send, c.Expect)
		if IsMismatch(err) {
			log.Verboseln("Probe:", c.Name, err)
			return model.Unknown, nil
		} else if err != nil {
			return model.Unknown, failure.Wrap(failure.Protocol, err, "probe")
		}
	}

	resp, err := l.exchange(model.ProbeFrame)
	if err != nil {
		return model.Unknown, failure.Wrap(failure.Protocol, err, "probe")
	}

	if len(resp) < signatureLen {
		return model.Unknown, nil
	}

	sig := string(resp[:signatureLen])
	m := model.FromSignature(sig)
	log.Verbosef("Probe signature '%s' -> %s\n", sig, m)

	return m, nil
}
