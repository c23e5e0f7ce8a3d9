/*
 * GPIB488 - Configuration store
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sigurn/crc16"

	"github.com/rcornwell/gpib488/bus/config"
	"github.com/rcornwell/gpib488/util/hex"
)

/*
 * The store is a file holding an EEPROM image. An erased image is all
 * 0xff. A saved configuration is a CRC-16 (CCITT) of the record in the
 * first two bytes, little endian, followed by the record.
 */

const (
	Size  = 512 // Bytes in image.
	start = 2   // First byte of record.
)

var (
	ErrCRC   = errors.New("configuration store CRC mismatch")
	ErrClear = errors.New("configuration store is erased")
)

var table = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Store is an EEPROM image kept in a file.
type Store struct {
	name  string
	image [Size]byte
}

// Open the image in file name, a missing file is an erased image.
func Open(name string) (*Store, error) {
	st := &Store{name: name}
	st.fill()
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read store: %w", err)
	}
	copy(st.image[:], data)
	return st, nil
}

func (st *Store) fill() {
	for i := range st.image {
		st.image[i] = 0xff
	}
}

func (st *Store) Name() string {
	return st.name
}

// IsClear reports whether the image is erased.
func (st *Store) IsClear() bool {
	for _, b := range st.image {
		if b != 0xff {
			return false
		}
	}
	return true
}

// Erase the image and write it back.
func (st *Store) Erase() error {
	st.fill()
	return st.flush()
}

// Save cfg and write the image.
func (st *Store) Save(cfg *config.Config) error {
	rec := cfg.Marshal()
	copy(st.image[start:], rec)
	binary.LittleEndian.PutUint16(st.image[0:], crc16.Checksum(rec, table))
	return st.flush()
}

// Load the saved record into cfg. On error cfg is not changed.
func (st *Store) Load(cfg *config.Config) error {
	if st.IsClear() {
		return ErrClear
	}
	rec := st.image[start : start+config.RecordSize]
	want := binary.LittleEndian.Uint16(st.image[0:])
	if got := crc16.Checksum(rec, table); got != want {
		return fmt.Errorf("%w: %04x expected %04x", ErrCRC, got, want)
	}
	return cfg.Unmarshal(rec)
}

// Dump writes the used part of the image in hex, 16 bytes to a row.
func (st *Store) Dump(w io.Writer) error {
	for row := 0; row < start+config.RecordSize; row += hex.RowSize {
		end := min(row+hex.RowSize, Size)
		if _, err := fmt.Fprintln(w, hex.Row(row, st.image[row:end])); err != nil {
			return err
		}
	}
	return nil
}

func (st *Store) flush() error {
	if st.name == "" {
		return nil
	}
	if err := os.WriteFile(st.name, st.image[:], 0o644); err != nil {
		return fmt.Errorf("unable to write store: %w", err)
	}
	return nil
}
