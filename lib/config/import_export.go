// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

func (c *Config) Validate() error {
	if err := c.Transfer.Config().Validate(); err != nil {
		return errors.Wrap(err, "transfer")
	}

	if c.Transfer.MaxFlashSize <= 0 {
		return errors.New("transfer: max_flash_size must be positive")
	}

	if c.Transfer.Timeout.Duration <= 0 {
		return errors.New("transfer: timeout must be positive")
	}

	return nil
}

func (c *Config) WriteTOML(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(f)
	err = enc.Encode(c)
	if err != nil {
		f.Close()
		return err
	}

	err = f.Close()
	return err
}

// LoadConfig reads filename on top of the defaults, so any key can be left
// out.
func LoadConfig(filename string) (*Config, error) {
	var cfg = Default()
	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}

	for _, k := range md.Undecoded() {
		log.Println("Warning: unknown config key", k.String())
	}

	err = cfg.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}

	return cfg, nil
}
