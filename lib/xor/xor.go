// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package xor

// Apply returns data XOR'd with key, repeating key as many times as needed.
// XOR is its own inverse, so the same call both encodes and decodes.
func Apply(data []byte, key []byte) []byte {
	res := make([]byte, len(data))
	copy(res, data)
	Decode(res, key)
	return res
}

// Decode is Apply in place.
func Decode(data []byte, key []byte) {
	if len(key) == 0 {
		return
	}

	for i := range data {
		data[i] ^= key[i%len(key)]
	}
}
