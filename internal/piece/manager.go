// Package piece implements the shared piece/block bookkeeping coordinator:
// rarest-first block selection, request expiry, SHA-1 verification, and
// writing completed pieces to their offset in the output file.
package piece

import (
	"crypto/sha1"
	"fmt"
	"log"
	"sync"
	"time"

	"torrentleech/internal/bitfield"
	"torrentleech/internal/leecherr"
	"torrentleech/internal/metainfo"
	"torrentleech/internal/wire"
)

// DefaultMaxPending is the default request expiry window (300s).
const DefaultMaxPending = 300 * time.Second

// Writer is the disk-write side of a Manager; FileWriter is the production
// implementation.
type Writer interface {
	WritePiece(index int, pieceLength int64, data []byte) error
	Close() error
}

type pendingRequest struct {
	block    *Block
	issuedAt time.Time
}

// Manager is the single coordinator of per-piece/per-block status across
// all peer sessions: it tracks missing/ongoing/have piece sets, chooses the
// next block to request with a rarest-first policy, detects request
// expiry, verifies pieces by SHA-1, and writes them to disk.
type Manager struct {
	mu sync.Mutex

	pieceLength int64
	numPieces   int

	missing []*Piece
	ongoing []*Piece
	have    map[int]*Piece

	peers   map[string]bitfield.BitField
	pending []*pendingRequest

	writer Writer

	// MaxPending overrides DefaultMaxPending; tests shrink this to
	// exercise expiry without sleeping for 300 real seconds.
	MaxPending time.Duration
}

// NewManager builds the full set of Pieces/Blocks for info and uses the
// already-open writer as the output sink.
func NewManager(info *metainfo.Info, writer Writer) *Manager {
	m := &Manager{
		pieceLength: info.PieceLength(),
		numPieces:   info.NumPieces(),
		have:        make(map[int]*Piece),
		peers:       make(map[string]bitfield.BitField),
		writer:      writer,
		MaxPending:  DefaultMaxPending,
	}

	for i := 0; i < info.NumPieces(); i++ {
		m.missing = append(m.missing, buildPiece(i, info.PieceHash(i), info.PieceSize(i)))
	}
	return m
}

func buildPiece(index int, hash [20]byte, pieceSize int64) *Piece {
	var blocks []*Block
	var offset int64
	for offset < pieceSize {
		length := int64(wire.RequestSize)
		if remaining := pieceSize - offset; remaining < length {
			length = remaining
		}
		blocks = append(blocks, &Block{
			PieceIndex: index,
			Offset:     uint32(offset),
			Length:     uint32(length),
		})
		offset += length
	}
	return &Piece{Index: index, ExpectedHash: hash, Blocks: blocks}
}

// AddPeer records (or overwrites) a peer's bitfield.
func (m *Manager) AddPeer(peerID string, bf bitfield.BitField) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peerID] = bf
}

// UpdatePeer sets bit pieceIndex in peerID's bitfield; a no-op if the peer
// is unknown.
func (m *Manager) UpdatePeer(peerID string, pieceIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bf, ok := m.peers[peerID]
	if !ok {
		return
	}
	if pieceIndex/8 >= len(bf) {
		grown := bitfield.New(pieceIndex + 1)
		copy(grown, bf)
		bf = grown
		m.peers[peerID] = bf
	}
	bf.Set(pieceIndex)
}

// RemovePeer forgets peerID entirely.
func (m *Manager) RemovePeer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

// NextRequest selects the next Block to request from peerID, or (nil,
// false) if nothing is available: nothing expired, no ongoing piece the
// peer has still needs a block, and no missing piece the peer has remains.
func (m *Manager) NextRequest(peerID string) (*Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	has := m.peers[peerID] // zero value for an unknown peer: Has() always false.

	if b := m.expiredRequest(has); b != nil {
		return b, true
	}
	if b := m.nextOngoing(has); b != nil {
		return b, true
	}
	if b := m.nextRarest(peerID, has); b != nil {
		return b, true
	}
	return nil, false
}

func (m *Manager) expiredRequest(has bitfield.BitField) *Block {
	now := time.Now()
	for _, req := range m.pending {
		if !has.Has(req.block.PieceIndex) {
			continue
		}
		if now.Sub(req.issuedAt) > m.MaxPending {
			req.issuedAt = now
			return req.block
		}
	}
	return nil
}

func (m *Manager) nextOngoing(has bitfield.BitField) *Block {
	for _, p := range m.ongoing {
		if !has.Has(p.Index) {
			continue
		}
		if b := p.NextMissingBlock(); b != nil {
			m.pending = append(m.pending, &pendingRequest{block: b, issuedAt: time.Now()})
			return b
		}
	}
	return nil
}

func (m *Manager) nextRarest(peerID string, has bitfield.BitField) *Block {
	var rarest *Piece
	rarestIdx := -1
	minCount := -1

	for idx, p := range m.missing {
		if !has.Has(p.Index) {
			continue
		}
		count := 0
		for _, peerBits := range m.peers {
			if peerBits.Has(p.Index) {
				count++
			}
		}
		if minCount == -1 || count < minCount {
			minCount = count
			rarest = p
			rarestIdx = idx
		}
	}

	if rarest == nil {
		return nil
	}

	m.missing = append(m.missing[:rarestIdx], m.missing[rarestIdx+1:]...)
	m.ongoing = append(m.ongoing, rarest)

	b := rarest.NextMissingBlock()
	if b == nil {
		return nil
	}
	m.pending = append(m.pending, &pendingRequest{block: b, issuedAt: time.Now()})
	return b
}

// BlockReceived records a retrieved block, verifying and writing the piece
// to disk once every block has arrived.
func (m *Manager) BlockReceived(peerID string, pieceIndex int, begin uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, req := range m.pending {
		if req.block.PieceIndex == pieceIndex && req.block.Offset == begin {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}

	ongoingIdx := -1
	for i, p := range m.ongoing {
		if p.Index == pieceIndex {
			ongoingIdx = i
			break
		}
	}
	if ongoingIdx == -1 {
		log.Printf("[piece] block for piece %d from %s: not ongoing, discarding", pieceIndex, peerID)
		return nil
	}

	p := m.ongoing[ongoingIdx]
	p.BlockReceived(begin, data)

	if !p.IsComplete() {
		return nil
	}

	assembled := p.Data()
	hash := sha1.Sum(assembled)
	if hash != p.ExpectedHash {
		log.Printf("[piece] piece %d failed hash verification, resetting", pieceIndex)
		p.Reset()
		m.ongoing = append(m.ongoing[:ongoingIdx], m.ongoing[ongoingIdx+1:]...)
		m.missing = append(m.missing, p)
		return leecherr.New(leecherr.IntegrityMismatch, "piece.Manager.BlockReceived",
			fmt.Errorf("piece %d hash mismatch", pieceIndex))
	}

	if err := m.writer.WritePiece(pieceIndex, m.pieceLength, assembled); err != nil {
		return err
	}
	m.ongoing = append(m.ongoing[:ongoingIdx], m.ongoing[ongoingIdx+1:]...)
	m.have[pieceIndex] = p
	return nil
}

// BytesDownloaded approximates progress as len(have)*piece_length, ignoring
// that the final piece may be shorter.
func (m *Manager) BytesDownloaded() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.have)) * m.pieceLength
}

// Complete reports whether every piece has been retrieved and verified.
func (m *Manager) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.have) == m.numPieces
}

// Close releases the output file handle.
func (m *Manager) Close() error {
	return m.writer.Close()
}
