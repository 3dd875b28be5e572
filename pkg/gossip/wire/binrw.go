package wire

import (
	"encoding/binary"
)

// BinWriter accumulates big-endian fields into a byte slice, sticking to
// the first error it encounters so call sites can chain Write* calls
// without checking each one and inspect Err once at the end.
type BinWriter struct {
	buf []byte
	Err error
}

// NewBinWriter returns an empty BinWriter.
func NewBinWriter() *BinWriter {
	return &BinWriter{}
}

// WriteU8 appends a single byte.
func (w *BinWriter) WriteU8(v uint8) {
	if w.Err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// WriteU16BE appends a big-endian uint16.
func (w *BinWriter) WriteU16BE(v uint16) {
	if w.Err != nil {
		return
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU64BE appends a big-endian uint64.
func (w *BinWriter) WriteU64BE(v uint64) {
	if w.Err != nil {
		return
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBytes appends raw bytes verbatim (no length prefix).
func (w *BinWriter) WriteBytes(b []byte) {
	if w.Err != nil {
		return
	}
	w.buf = append(w.buf, b...)
}

// Bytes returns the accumulated buffer.
func (w *BinWriter) Bytes() []byte { return w.buf }

// BinReader consumes big-endian fields from a byte slice, sticking to
// the first error the way pkg/io.BinReader does.
type BinReader struct {
	buf []byte
	pos int
	Err error
}

// NewBinReaderFromBuf wraps buf for sequential reads.
func NewBinReaderFromBuf(buf []byte) *BinReader {
	return &BinReader{buf: buf}
}

func (r *BinReader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.Err = NewProtocolError(ErrMalformedFrame, "short read", nil)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadU8 consumes a single byte.
func (r *BinReader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadU16BE consumes a big-endian uint16.
func (r *BinReader) ReadU16BE() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

// ReadU64BE consumes a big-endian uint64.
func (r *BinReader) ReadU64BE() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// ReadRest consumes and returns every remaining byte.
func (r *BinReader) ReadRest() []byte {
	if r.Err != nil {
		return nil
	}
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}
