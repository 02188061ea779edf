// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/gd77-tools/lib/failure"
)

var exitCodes = map[failure.Kind]int{
	failure.Format:         2,
	failure.Capacity:       4,
	failure.Protocol:       5,
	failure.DeviceNotFound: 6,
	failure.Transfer:       7,
	failure.ModelMismatch:  10,
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}

	if v, ok := err.(cli.ExitCoder); ok {
		return v.ExitCode()
	}

	if code, ok := exitCodes[failure.KindOf(err)]; ok {
		return code
	}

	return 1
}
