// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"github.com/cheggaaa/pb/v3"
	"github.com/usedbytes/gd77-tools/lib/config"
	"github.com/usedbytes/gd77-tools/lib/flash"
	"github.com/usedbytes/gd77-tools/lib/protocol"
	"github.com/usedbytes/gd77-tools/lib/usb"
	"github.com/usedbytes/log"
)

func usbOpener(cfg *config.Config) flash.Opener {
	return func() (protocol.Transport, error) {
		t, err := usb.Open(&cfg.USB)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// progressBar draws the transfer on the terminal. In verbose mode the wire
// trace would tear it up, so print one line per block instead.
func progressBar(verbose bool) (protocol.ProgressFunc, func()) {
	if verbose {
		return func(p protocol.Progress) {
			if p.Last() {
				log.Println(" - Sent last block")
			} else {
				log.Printf(" - Sent block %d of %d\n", p.Block, p.TotalBlocks)
			}
		}, func() {}
	}

	var bar *pb.ProgressBar
	finished := false
	update := func(p protocol.Progress) {
		if bar == nil {
			bar = pb.Full.Start(p.TotalBytes)
			bar.Set(pb.Bytes, true)
		}
		bar.SetCurrent(int64(p.BytesSent))
		if p.Last() {
			bar.Finish()
			finished = true
		}
	}
	// For when the transfer stops early
	finish := func() {
		if bar != nil && !finished {
			bar.Finish()
		}
	}

	return update, finish
}
