package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"torrentleech/internal/leecherr"
)

// maxFrameLength guards against a malicious or corrupt peer claiming an
// enormous frame and exhausting memory; no real BitTorrent message
// (Piece payloads included) approaches this size.
const maxFrameLength = 1 << 20

// Framer turns a peer's raw byte stream into a lazy, single-consumer
// sequence of decoded Messages. It owns a growable internal buffer seeded
// by an optional prefix (bytes already read off the wire, e.g. trailing the
// handshake read).
type Framer struct {
	r   io.Reader
	buf []byte
}

// NewFramer returns a Framer reading frames from r, starting with any bytes
// already buffered in prefix.
func NewFramer(r io.Reader, prefix []byte) *Framer {
	buf := make([]byte, len(prefix))
	copy(buf, prefix)
	return &Framer{r: r, buf: buf}
}

// Next returns the next decoded Message, reading more from the underlying
// stream as needed. It returns io.EOF when the stream ends cleanly (with no
// buffered partial frame, or with exactly one trailing partial frame that
// is discarded), and any other error the underlying reader produces.
// Unknown message ids are skipped transparently.
func (f *Framer) Next() (Message, error) {
	for {
		if len(f.buf) >= 4 {
			length := binary.BigEndian.Uint32(f.buf[0:4])
			if length == 0 {
				f.buf = f.buf[4:]
				return Message{ID: KeepAlive}, nil
			}
			if length > maxFrameLength {
				return Message{}, errFrameTooLarge
			}

			total := 4 + int(length)
			if len(f.buf) >= total {
				id := f.buf[4]
				payload := f.buf[5:total]
				f.buf = f.buf[total:]

				msg, err := Decode(id, payload)
				if err != nil {
					if IsUnknownID(err) {
						continue
					}
					return Message{}, err
				}
				return msg, nil
			}
		}

		if err := f.fill(); err != nil {
			return Message{}, err
		}
	}
}

// fill reads more bytes from the underlying reader into buf. EOF is
// translated per the framer's termination rules: a read returning io.EOF
// with a non-empty, sub-frame-length buffer still terminates with io.EOF
// (the partial trailing frame is discarded, never yielded).
func (f *Framer) fill() error {
	chunk := make([]byte, 8192)
	n, err := f.r.Read(chunk)
	if n > 0 {
		f.buf = append(f.buf, chunk[:n]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if n > 0 {
				// the bytes delivered with EOF may complete a frame; the
				// next read reports EOF again once they are consumed.
				return nil
			}
			return io.EOF
		}
		return err
	}
	if n == 0 {
		return io.EOF
	}
	return nil
}

var errFrameTooLarge = leecherr.New(leecherr.Codec, "wire.Framer.Next", fmt.Errorf("frame length exceeds %d bytes", maxFrameLength))
