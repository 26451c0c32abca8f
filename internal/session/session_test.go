package session

import (
	"bytes"
	"context"
	"crypto/sha1"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"torrentleech/internal/bencode"
	"torrentleech/internal/metainfo"
	"torrentleech/internal/piece"
	"torrentleech/internal/tracker"
	"torrentleech/internal/wire"
)

type memWriter struct {
	written map[int][]byte
}

func newMemWriter() *memWriter { return &memWriter{written: make(map[int][]byte)} }

func (w *memWriter) WritePiece(index int, pieceLength int64, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	w.written[index] = cp
	return nil
}

func (w *memWriter) Close() error { return nil }

func buildInfo(t *testing.T, pieceLength, totalSize int64, hashes [][20]byte) *metainfo.Info {
	t.Helper()
	var piecesBytes []byte
	for _, h := range hashes {
		piecesBytes = append(piecesBytes, h[:]...)
	}
	info := bencode.Value{Kind: bencode.KindDict, Dict: []bencode.DictEntry{
		{Key: "length", Value: bencode.Int64(totalSize)},
		{Key: "name", Value: bencode.String("fixture.bin")},
		{Key: "piece length", Value: bencode.Int64(pieceLength)},
		{Key: "pieces", Value: bencode.Value{Kind: bencode.KindBytes, Bytes: piecesBytes}},
	}}
	top := bencode.Value{Kind: bencode.KindDict, Dict: []bencode.DictEntry{
		{Key: "announce", Value: bencode.String("http://tracker.example.com/announce")},
		{Key: "info", Value: info},
	}}
	parsed, err := metainfo.Parse(bencode.Encode(top))
	if err != nil {
		t.Fatalf("metainfo.Parse: %v", err)
	}
	return parsed
}

// fakePeer runs a minimal peer on the other end of one accepted connection:
// it handshakes, advertises a single-piece bitfield, unchokes, serves
// exactly one Request with the matching Piece, then closes.
func fakePeer(t *testing.T, infoHash [20]byte, data []byte) (addr string, done <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer ln.Close()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, wire.HandshakeSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		theirs, err := wire.DecodeHandshake(buf)
		if err != nil || theirs.InfoHash != infoHash {
			return
		}

		var peerID [20]byte
		copy(peerID[:], "-FAKE01-000000000000")
		ours := wire.Handshake{InfoHash: infoHash, PeerID: peerID}
		if _, err := conn.Write(ours.Encode()); err != nil {
			return
		}

		framer := wire.NewFramer(conn, nil)

		// expect Interested.
		msg, err := framer.Next()
		if err != nil || msg.ID != wire.MsgInterested {
			return
		}

		bf := wire.NewBitField([]byte{0b10000000})
		if _, err := conn.Write(bf.Encode()); err != nil {
			return
		}
		unchoke := wire.Message{ID: wire.MsgUnchoke}
		if _, err := conn.Write(unchoke.Encode()); err != nil {
			return
		}

		req, err := framer.Next()
		if err != nil || req.ID != wire.MsgRequest {
			return
		}

		pieceMsg := wire.NewPiece(req.Index, req.Begin, data)
		conn.Write(pieceMsg.Encode())

		// drain until the client closes the connection.
		for {
			if _, err := framer.Next(); err != nil {
				return
			}
		}
	}()

	return ln.Addr().String(), finished
}

func TestSessionDownloadsSinglePieceFromPeer(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 16384)
	hash := sha1.Sum(data)
	info := buildInfo(t, 16384, 16384, [][20]byte{hash})

	infoHash := info.InfoHash()
	addr, peerDone := fakePeer(t, infoHash, data)

	w := newMemWriter()
	pm := piece.NewManager(info, w)

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}

	queue := make(chan tracker.Peer, 1)
	queue <- tracker.Peer{IP: net.ParseIP(host), Port: uint16(port)}

	var ourPeerID [20]byte
	copy(ourPeerID[:], "-LC0001-000000000000")
	s := New(ourPeerID, infoHash, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go s.Run(ctx, queue, pm)

	deadline := time.Now().Add(4 * time.Second)
	for !pm.Complete() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if !pm.Complete() {
		t.Fatal("manager never reached complete")
	}
	if !bytes.Equal(w.written[0], data) {
		t.Error("written piece data doesn't match")
	}

	// Stop the session so it closes its connection, letting the fake peer's
	// own read unblock and its goroutine exit.
	s.Stop()

	select {
	case <-peerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fake peer never finished after the session stopped")
	}
}

func TestSessionSkipsSelfAddress(t *testing.T) {
	var infoHash, ourPeerID [20]byte
	s := New(ourPeerID, infoHash, "127.0.0.1:1234")

	queue := make(chan tracker.Peer, 1)
	queue <- tracker.Peer{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	close(queue)

	info := buildInfo(t, 16384, 16384, [][20]byte{{}})
	pm := piece.NewManager(info, newMemWriter())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Run should drain the (self) queue entry without attempting to dial
	// and return once the queue is closed.
	done := make(chan struct{})
	go func() {
		s.Run(ctx, queue, pm)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the queue closed")
	}
}

func TestFlagsHas(t *testing.T) {
	f := Choked | Interested
	if !f.Has(Choked) || !f.Has(Interested) {
		t.Fatal("expected both bits set")
	}
	if f.Has(PendingRequest) {
		t.Fatal("did not expect PendingRequest set")
	}
}
