// Package randomness is the single source of entropy for noise generation.
// It only ever reads from the operating system CSPRNG; when that fails the
// caller gets ErrUnavailable and no value, never a weaker fallback.
package randomness

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnavailable is returned when the entropy source cannot be read.
var ErrUnavailable = errors.New("secure randomness unavailable")

// Source produces unpredictable values. Implementations are safe for
// concurrent use.
type Source interface {
	// UniformOpenUnit returns a value in the open interval (0, 1).
	UniformOpenUnit() (float64, error)
	// Bytes returns n random bytes.
	Bytes(n int) ([]byte, error)
}

// Reader is a Source backed by an io.Reader behind a mutex-guarded buffer.
type Reader struct {
	mu  sync.Mutex
	buf io.Reader
}

var _ Source = (*Reader)(nil)

// NewCrypto returns a Source over crypto/rand.
func NewCrypto() *Reader {
	return NewFromReader(cryptorand.Reader)
}

// NewFromReader wraps r. Only tests should pass anything but crypto/rand.Reader.
func NewFromReader(r io.Reader) *Reader {
	return &Reader{buf: bufio.NewReaderSize(r, 4096)}
}

func (s *Reader) read(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.ReadFull(s.buf, b); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative byte count %d", n)
	}
	b := make([]byte, n)
	if err := s.read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Uint64 returns a uniformly random uint64.
func (s *Reader) Uint64() (uint64, error) {
	var b [8]byte
	if err := s.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// UniformOpenUnit takes the top 52 bits and centres them in their cell. With
// 52 bits the half-cell offset stays exactly representable, so the result is
// never rounded to 0 or 1.
func (s *Reader) UniformOpenUnit() (float64, error) {
	x, err := s.Uint64()
	if err != nil {
		return 0, err
	}
	return (float64(x>>12) + 0.5) / (1 << 52), nil
}
