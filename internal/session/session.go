// Package session implements one peer wire-protocol session: the
// connect/handshake/message-loop lifecycle described by the peer session
// component, driven against a shared piece manager and a shared peer queue.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"torrentleech/internal/bitfield"
	"torrentleech/internal/leecherr"
	"torrentleech/internal/piece"
	"torrentleech/internal/tracker"
	"torrentleech/internal/wire"
)

// Flags is our side of a session's state, a bit set replacing the
// originally-described string set per the "reimplement as a small bit-flag
// set" design note.
type Flags uint8

const (
	Choked Flags = 1 << iota
	Interested
	PendingRequest
	Stopped
)

// Has reports whether every bit in want is set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// PeerFlags is the remote peer's state as we observe it.
type PeerFlags uint8

const (
	PeerInterested PeerFlags = 1 << iota
)

const (
	dialTimeout = 5 * time.Second
	ioTimeout   = 60 * time.Second
)

// Session owns one outbound TCP connection at a time and runs its full
// connect/handshake/message-loop lifecycle, pulling new peers from a shared
// queue whenever it has none.
type Session struct {
	ourPeerID [20]byte
	infoHash  [20]byte
	selfAddr  string // skip a peer that is our own listening address.

	mu        sync.Mutex
	flags     Flags
	peerFlags PeerFlags
	done      chan struct{}
	stopOnce  sync.Once
}

// New builds a Session that will handshake as ourPeerID for the torrent
// identified by infoHash. selfAddr (if non-empty) is skipped when popped
// from the peer queue, guarding against a tracker handing back our own
// listening address.
func New(ourPeerID [20]byte, infoHash [20]byte, selfAddr string) *Session {
	return &Session{
		ourPeerID: ourPeerID,
		infoHash:  infoHash,
		selfAddr:  selfAddr,
		done:      make(chan struct{}),
	}
}

// Stop marks the session stopped: Run pulls no further peers, and an
// established connection is closed, which ends its message loop. Safe to
// call from any goroutine, any number of times.
func (s *Session) Stop() {
	s.mu.Lock()
	s.flags |= Stopped
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags.Has(Stopped)
}

// Run pulls peers from queue for as long as ctx is alive and the session
// hasn't been stopped, running one connection's full lifecycle per peer. It
// returns once ctx is done, queue is closed, or Stop is called.
func (s *Session) Run(ctx context.Context, queue <-chan tracker.Peer, pm *piece.Manager) {
	for {
		if s.stopped() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case p, ok := <-queue:
			if !ok {
				return
			}
			if s.selfAddr != "" && p.String() == s.selfAddr {
				continue
			}
			s.runOnePeer(ctx, p, pm)
		}
	}
}

// runOnePeer executes lifecycle steps 2-7 for a single popped peer: dial,
// handshake, message loop, and cleanup. Any error at any step simply
// returns, sending control back to Run's queue pull (step 1).
func (s *Session) runOnePeer(ctx context.Context, p tracker.Peer, pm *piece.Manager) {
	addr := p.String()

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Printf("[session] %s: dial failed: %v", addr, err)
		return
	}
	defer conn.Close()

	// a blocked conn.Read doesn't observe ctx cancellation on its own;
	// this watcher forces it to unblock by closing the connection.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.done:
			conn.Close()
		case <-watcherDone:
		}
	}()

	remotePeerID, err := s.handshake(conn)
	if err != nil {
		log.Printf("[session] %s: handshake failed: %v", addr, err)
		return
	}
	log.Printf("[session] %s: handshake ok, remote peer id %x", addr, remotePeerID)
	defer pm.RemovePeer(remotePeerID)

	s.mu.Lock()
	s.flags = Choked
	s.peerFlags = 0
	s.mu.Unlock()

	if err := s.sendInterested(conn); err != nil {
		log.Printf("[session] %s: failed to send Interested: %v", addr, err)
		return
	}
	s.mu.Lock()
	s.flags |= Interested
	s.mu.Unlock()

	s.messageLoop(ctx, conn, remotePeerID, pm)
}

func (s *Session) handshake(conn net.Conn) (string, error) {
	conn.SetDeadline(time.Now().Add(dialTimeout))
	defer conn.SetDeadline(time.Time{})

	our := wire.Handshake{InfoHash: s.infoHash, PeerID: s.ourPeerID}
	if _, err := conn.Write(our.Encode()); err != nil {
		return "", leecherr.New(leecherr.IOTransient, "session.handshake", fmt.Errorf("writing handshake: %w", err))
	}

	buf := make([]byte, wire.HandshakeSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", leecherr.New(leecherr.IOTransient, "session.handshake", fmt.Errorf("reading handshake: %w", err))
	}

	remote, err := wire.DecodeHandshake(buf)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(remote.InfoHash[:], s.infoHash[:]) {
		return "", leecherr.New(leecherr.Handshake, "session.handshake", fmt.Errorf("info_hash mismatch"))
	}
	return string(remote.PeerID[:]), nil
}

func (s *Session) sendInterested(conn net.Conn) error {
	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := conn.Write(wire.Message{ID: wire.MsgInterested}.Encode())
	if err != nil {
		return leecherr.New(leecherr.IOTransient, "session.sendInterested", err)
	}
	return nil
}

// messageLoop implements lifecycle step 5: apply the message-to-effect
// table, then pump a new request whenever we're interested, unchoked, and
// have no request outstanding.
func (s *Session) messageLoop(ctx context.Context, conn net.Conn, remotePeerID string, pm *piece.Manager) {
	framer := wire.NewFramer(conn, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(ioTimeout))
		msg, err := framer.Next()
		if err != nil {
			if err != io.EOF {
				log.Printf("[session] %s: framer error: %v", remotePeerID, err)
			}
			return
		}

		s.applyEffect(remotePeerID, msg, pm)
		s.pumpRequest(conn, remotePeerID, pm)
	}
}

func (s *Session) applyEffect(remotePeerID string, msg wire.Message, pm *piece.Manager) {
	switch msg.ID {
	case wire.MsgBitField:
		pm.AddPeer(remotePeerID, bitfield.BitField(msg.BitField))
	case wire.MsgHave:
		pm.UpdatePeer(remotePeerID, int(msg.Index))
	case wire.MsgChoke:
		s.mu.Lock()
		s.flags |= Choked
		s.mu.Unlock()
	case wire.MsgUnchoke:
		s.mu.Lock()
		s.flags &^= Choked
		s.mu.Unlock()
	case wire.MsgInterested:
		s.mu.Lock()
		s.peerFlags |= PeerInterested
		s.mu.Unlock()
	case wire.MsgNotInterested:
		s.mu.Lock()
		s.peerFlags &^= PeerInterested
		s.mu.Unlock()
	case wire.MsgPiece:
		s.mu.Lock()
		s.flags &^= PendingRequest
		s.mu.Unlock()
		if err := pm.BlockReceived(remotePeerID, int(msg.Index), msg.Begin, msg.Block); err != nil {
			if leecherr.Is(err, leecherr.IntegrityMismatch) {
				log.Printf("[session] %s: %v", remotePeerID, err)
			}
		}
	case wire.KeepAlive, wire.MsgRequest, wire.MsgCancel:
		// KeepAlive is a no-op; Request/Cancel are ignored since this
		// client never seeds.
	}
}

// pumpRequest asks the piece manager for the next block and sends a Request
// for it, provided we're interested, unchoked, and have no request already
// outstanding. PendingRequest is only set once a block was actually
// requested, so a peer with momentarily nothing to offer doesn't wedge the
// pump shut for the rest of the session.
func (s *Session) pumpRequest(conn net.Conn, remotePeerID string, pm *piece.Manager) {
	s.mu.Lock()
	ready := s.flags.Has(Interested) && !s.flags.Has(Choked) && !s.flags.Has(PendingRequest)
	s.mu.Unlock()
	if !ready {
		return
	}

	block, ok := pm.NextRequest(remotePeerID)
	if !ok {
		return
	}

	s.mu.Lock()
	s.flags |= PendingRequest
	s.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	req := wire.NewRequest(uint32(block.PieceIndex), block.Offset, block.Length)
	if _, err := conn.Write(req.Encode()); err != nil {
		log.Printf("[session] %s: failed to send Request: %v", remotePeerID, err)
	}
}
