package wire

import (
	"fmt"

	"torrentleech/internal/leecherr"
)

// HandshakeSize is the fixed length of every Handshake on the wire.
const HandshakeSize = 1 + 19 + 8 + 20 + 20

const protocolName = "BitTorrent protocol"

// Handshake is the 68-byte greeting exchanged first on every peer
// connection, before any length-prefixed message.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Encode serializes h into the fixed 68-byte handshake layout:
// pstrlen(1) | "BitTorrent protocol"(19) | reserved(8) | info_hash(20) | peer_id(20).
func (h Handshake) Encode() []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(protocolName))
	copy(buf[1:20], protocolName)
	// buf[20:28] reserved, left zero.
	copy(buf[28:48], h.InfoHash[:])
	copy(buf[48:68], h.PeerID[:])
	return buf
}

// DecodeHandshake parses exactly HandshakeSize bytes into a Handshake,
// rejecting anything that doesn't advertise the BitTorrent protocol.
func DecodeHandshake(buf []byte) (Handshake, error) {
	if len(buf) != HandshakeSize {
		return Handshake{}, leecherr.New(leecherr.Handshake, "wire.DecodeHandshake",
			fmt.Errorf("handshake length %d, want %d", len(buf), HandshakeSize))
	}
	pstrlen := int(buf[0])
	if pstrlen != len(protocolName) || string(buf[1:1+pstrlen]) != protocolName {
		return Handshake{}, leecherr.New(leecherr.Handshake, "wire.DecodeHandshake",
			fmt.Errorf("unexpected protocol identifier"))
	}

	var h Handshake
	copy(h.InfoHash[:], buf[28:48])
	copy(h.PeerID[:], buf[48:68])
	return h, nil
}
