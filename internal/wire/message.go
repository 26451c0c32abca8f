// Package wire implements the BitTorrent peer wire protocol: the fixed
// 68-byte handshake, the length-prefixed message codec, and a stream framer
// that turns a peer's byte stream into a sequence of decoded messages.
package wire

import (
	"encoding/binary"
	"fmt"

	"torrentleech/internal/leecherr"
)

// RequestSize is the fixed block size (2^14) used for every Request.
const RequestSize = 1 << 14

// MessageID identifies a peer-wire message kind. KeepAlive has no numeric
// id on the wire (it's signaled by a zero-length frame); it is assigned a
// sentinel value here purely for Go-side dispatch.
type MessageID int16

const (
	KeepAlive MessageID = iota - 1
	MsgChoke
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitField
	MsgRequest
	MsgPiece
	MsgCancel
)

func (id MessageID) String() string {
	switch id {
	case KeepAlive:
		return "KeepAlive"
	case MsgChoke:
		return "Choke"
	case MsgUnchoke:
		return "Unchoke"
	case MsgInterested:
		return "Interested"
	case MsgNotInterested:
		return "NotInterested"
	case MsgHave:
		return "Have"
	case MsgBitField:
		return "BitField"
	case MsgRequest:
		return "Request"
	case MsgPiece:
		return "Piece"
	case MsgCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("Unknown(%d)", int(id))
	}
}

// Message is a tagged union over every peer-wire message kind, matched
// structurally by ID rather than by type assertion.
type Message struct {
	ID      MessageID
	Index   uint32 // Have, Request, Piece, Cancel
	Begin   uint32 // Request, Piece, Cancel
	Length  uint32 // Request, Cancel
	Block   []byte // Piece payload
	BitField []byte // BitField payload, MSB-first
}

// Encode serializes m into its wire form: a 4-byte big-endian length prefix
// (counting id+payload, not itself) followed by the id byte and payload.
// KeepAlive encodes to a bare zero length prefix with no id byte.
func (m Message) Encode() []byte {
	switch m.ID {
	case KeepAlive:
		return []byte{0, 0, 0, 0}
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		return lengthPrefixed(byte(m.ID), nil)
	case MsgHave:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, m.Index)
		return lengthPrefixed(byte(m.ID), payload)
	case MsgBitField:
		return lengthPrefixed(byte(m.ID), m.BitField)
	case MsgRequest, MsgCancel:
		payload := make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], m.Index)
		binary.BigEndian.PutUint32(payload[4:8], m.Begin)
		binary.BigEndian.PutUint32(payload[8:12], m.Length)
		return lengthPrefixed(byte(m.ID), payload)
	case MsgPiece:
		payload := make([]byte, 8+len(m.Block))
		binary.BigEndian.PutUint32(payload[0:4], m.Index)
		binary.BigEndian.PutUint32(payload[4:8], m.Begin)
		copy(payload[8:], m.Block)
		return lengthPrefixed(byte(m.ID), payload)
	default:
		panic(fmt.Sprintf("wire: cannot encode unknown message id %v", m.ID))
	}
}

func lengthPrefixed(id byte, payload []byte) []byte {
	buf := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = id
	copy(buf[5:], payload)
	return buf
}

// Decode parses a single frame's id and payload (without the 4-byte length
// prefix, which the framer has already consumed) into a Message.
func Decode(id byte, payload []byte) (Message, error) {
	switch MessageID(id) {
	case MsgChoke:
		return Message{ID: MsgChoke}, nil
	case MsgUnchoke:
		return Message{ID: MsgUnchoke}, nil
	case MsgInterested:
		return Message{ID: MsgInterested}, nil
	case MsgNotInterested:
		return Message{ID: MsgNotInterested}, nil
	case MsgHave:
		if len(payload) != 4 {
			return Message{}, leecherr.New(leecherr.Codec, "wire.Decode",
				fmt.Errorf("Have payload length %d, want 4", len(payload)))
		}
		return Message{ID: MsgHave, Index: binary.BigEndian.Uint32(payload)}, nil
	case MsgBitField:
		return Message{ID: MsgBitField, BitField: payload}, nil
	case MsgRequest, MsgCancel:
		if len(payload) != 12 {
			return Message{}, leecherr.New(leecherr.Codec, "wire.Decode",
				fmt.Errorf("%v payload length %d, want 12", MessageID(id), len(payload)))
		}
		return Message{
			ID:     MessageID(id),
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case MsgPiece:
		if len(payload) < 8 {
			return Message{}, leecherr.New(leecherr.Codec, "wire.Decode",
				fmt.Errorf("Piece payload length %d, want >= 8", len(payload)))
		}
		return Message{
			ID:    MsgPiece,
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: payload[8:],
		}, nil
	default:
		return Message{}, errUnknownID
	}
}

var errUnknownID = fmt.Errorf("wire: unknown message id")

// IsUnknownID reports whether err is the "unknown message id" sentinel
// Decode returns for an id the protocol doesn't define; the framer uses
// this to skip such frames instead of terminating the stream.
func IsUnknownID(err error) bool { return err == errUnknownID }

// NewHave builds a Have message.
func NewHave(index uint32) Message { return Message{ID: MsgHave, Index: index} }

// NewBitField builds a BitField message.
func NewBitField(bits []byte) Message { return Message{ID: MsgBitField, BitField: bits} }

// NewRequest builds a Request message.
func NewRequest(index, begin, length uint32) Message {
	return Message{ID: MsgRequest, Index: index, Begin: begin, Length: length}
}

// NewCancel builds a Cancel message with the same layout as Request.
func NewCancel(index, begin, length uint32) Message {
	return Message{ID: MsgCancel, Index: index, Begin: begin, Length: length}
}

// NewPiece builds a Piece message.
func NewPiece(index, begin uint32, block []byte) Message {
	return Message{ID: MsgPiece, Index: index, Begin: begin, Block: block}
}
