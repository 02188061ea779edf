// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/usedbytes/gd77-tools/lib/model"
	"github.com/usedbytes/gd77-tools/lib/sgl"
)

// Image describes an SGL container with its payload held in a separate
// file, so that it can be unpacked, modified and re-packed.
type Image struct {
	Model    model.Model     `toml:"model"`
	ModelTag uint8           `toml:"model_tag"`
	Key      model.EncodeKey `toml:"key"`
	Offset   uint16          `toml:"offset"`
	XORPair  [2]byte         `toml:"xor"`
	DataFile string          `toml:"data_file,omitempty"`
	Data     []byte          `toml:"-"`
}

func (img *Image) String() string {
	var s string
	s += "Image:\n"
	s += fmt.Sprintf("   Model: %s (tag 0x%02x)\n", img.Model, img.ModelTag)
	s += fmt.Sprintf("   Key: %s\n", img.Key)
	s += fmt.Sprintf("   Offset: 0x%04x XOR: %02x %02x\n", img.Offset, img.XORPair[0], img.XORPair[1])
	s += stringIfNotEmpty("   DataFile:", img.DataFile)
	if len(img.Data) != 0 {
		s += fmt.Sprintf("   Size: %d (0x%x) bytes\n", len(img.Data), len(img.Data))
	}
	return s
}

func stringIfNotEmpty(prefix, val string) string {
	if len(val) > 0 {
		return fmt.Sprintf("%s %s\n", prefix, val)
	}
	return ""
}

func NewImage(c *sgl.Container) *Image {
	return &Image{
		Model:    c.Model(),
		ModelTag: c.ModelTag,
		Key:      c.Key,
		Offset:   c.Offset,
		XORPair:  c.XORPair,
		Data:     c.Payload,
	}
}

func (img *Image) Container() *sgl.Container {
	return &sgl.Container{
		Payload:  img.Data,
		Key:      img.Key,
		ModelTag: img.ModelTag,
		Offset:   img.Offset,
		XORPair:  img.XORPair,
	}
}

func replaceFilenameChars(in string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' {
			return '_'
		}

		if strings.ContainsRune("\t\n\f\r%<>/'\"\\`:{}()$+*?|@!", r) {
			return -1
		}

		return r
	}, in)
}

// GenerateFilename names the data file after base, the model and the
// payload fingerprint. DataFile holds only the name; it lives in the same
// directory as the image description.
func (img *Image) GenerateFilename(base string) {
	parts := []string{"payload"}
	if len(base) != 0 {
		parts = append(parts, base)
	}
	if img.Model.Known() {
		parts = append(parts, img.Model.String())
	}

	fp := img.Container().Fingerprint()
	fname := fmt.Sprintf("%s.%04x.bin", strings.Join(parts, "_"), fp)

	img.DataFile = replaceFilenameChars(fname)
}

// DataPath is where DataFile is found, relative to dir.
func (img *Image) DataPath(dir string) string {
	if filepath.IsAbs(img.DataFile) {
		return img.DataFile
	}
	return filepath.Join(dir, img.DataFile)
}

func (img *Image) LoadData(dir string) error {
	if len(img.DataFile) == 0 {
		return errors.New("can't load Data - no filename")
	}

	f, err := os.Open(img.DataPath(dir))
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		return err
	}
	img.Data = data

	return nil
}

func (img *Image) WriteData(dir string) error {
	if len(img.Data) != 0 {
		if len(img.DataFile) == 0 {
			return errors.New("can't write Data - no filename")
		}

		f, err := os.Create(img.DataPath(dir))
		if err != nil {
			return err
		}

		n, err := f.Write(img.Data)
		if n != len(img.Data) {
			f.Close()
			return errors.New("short write for Data")
		} else if err != nil {
			f.Close()
			return err
		}

		err = f.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func (img *Image) WriteTOML(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	enc := toml.NewEncoder(f)
	err = enc.Encode(img)
	if err != nil {
		f.Close()
		return err
	}

	err = f.Close()
	return err
}

// Write stores the payload and a TOML description next to it.
func (img *Image) Write(filename string) error {
	err := img.WriteData(filepath.Dir(filename))
	if err != nil {
		return err
	}

	return img.WriteTOML(filename)
}

// LoadImage reads an image description and its payload. A relative
// data_file is taken relative to the description.
func LoadImage(filename string) (*Image, error) {
	var img = &Image{}
	_, err := toml.DecodeFile(filename, img)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}

	err = img.LoadData(filepath.Dir(filename))
	if err != nil {
		return nil, err
	}

	return img, nil
}
