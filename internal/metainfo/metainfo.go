// Package metainfo parses a .torrent file into a typed, immutable Info
// record: the announce URL, the SHA-1 info hash, piece geometry, and piece
// hashes needed by every other core component.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"os"

	"torrentleech/internal/bencode"
	"torrentleech/internal/leecherr"
)

const hashSize = 20

// Info is the immutable, parsed form of a single-file .torrent's metadata.
type Info struct {
	announce    string
	infoHash    [hashSize]byte
	pieceLength int64
	pieces      [][hashSize]byte
	totalSize   int64
	fileName    string
}

// Load reads and parses the .torrent file at path.
func Load(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, leecherr.New(leecherr.Fatal, "metainfo.Load", fmt.Errorf("reading %q: %w", path, err))
	}
	return Parse(data)
}

// Parse decodes raw bencoded .torrent bytes into an Info.
func Parse(data []byte) (*Info, error) {
	top, err := bencode.Decode(data)
	if err != nil {
		return nil, err
	}
	if top.Kind != bencode.KindDict {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", fmt.Errorf("top-level value is not a dictionary"))
	}

	announceBytes, err := top.GetString("announce")
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", err)
	}

	infoVal, ok := top.Get("info")
	if !ok {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", fmt.Errorf("missing \"info\" dictionary"))
	}
	if infoVal.Kind != bencode.KindDict {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", fmt.Errorf("\"info\" is not a dictionary"))
	}

	if _, hasFiles := infoVal.Get("files"); hasFiles {
		return nil, leecherr.New(leecherr.Fatal, "metainfo.Parse", fmt.Errorf("multi-file torrents are not supported"))
	}

	nameBytes, err := infoVal.GetString("name")
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", err)
	}

	pieceLength, err := infoVal.GetInt("piece length")
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", err)
	}
	if pieceLength <= 0 {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", fmt.Errorf("piece length must be positive, got %d", pieceLength))
	}

	piecesBytes, err := infoVal.GetString("pieces")
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", err)
	}
	if len(piecesBytes)%hashSize != 0 {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse",
			fmt.Errorf("pieces field length %d is not a multiple of %d", len(piecesBytes), hashSize))
	}

	totalSize, err := infoVal.GetInt("length")
	if err != nil {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", err)
	}
	if totalSize <= 0 {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse", fmt.Errorf("length must be positive, got %d", totalSize))
	}

	numPieces := len(piecesBytes) / hashSize
	wantPieces := (totalSize + pieceLength - 1) / pieceLength
	if int64(numPieces) != wantPieces {
		return nil, leecherr.New(leecherr.Codec, "metainfo.Parse",
			fmt.Errorf("piece count %d does not match ceil(total_size/piece_length) = %d", numPieces, wantPieces))
	}

	pieces := make([][hashSize]byte, numPieces)
	for i := 0; i < numPieces; i++ {
		copy(pieces[i][:], piecesBytes[i*hashSize:(i+1)*hashSize])
	}

	info := &Info{
		announce:    string(announceBytes),
		infoHash:    sha1.Sum(infoVal.Raw),
		pieceLength: pieceLength,
		pieces:      pieces,
		totalSize:   totalSize,
		fileName:    string(nameBytes),
	}
	return info, nil
}

// Announce returns the tracker announce URL.
func (i *Info) Announce() string { return i.announce }

// InfoHash returns the SHA-1 of the bencoded info dictionary exactly as it
// appeared in the source file.
func (i *Info) InfoHash() [hashSize]byte { return i.infoHash }

// PieceLength returns the nominal size of every piece but the last.
func (i *Info) PieceLength() int64 { return i.pieceLength }

// TotalSize returns the total content size in bytes.
func (i *Info) TotalSize() int64 { return i.totalSize }

// FileName returns the destination file name (info.name).
func (i *Info) FileName() string { return i.fileName }

// NumPieces returns the number of pieces.
func (i *Info) NumPieces() int { return len(i.pieces) }

// PieceHash returns the expected SHA-1 digest of piece index.
func (i *Info) PieceHash(index int) [hashSize]byte { return i.pieces[index] }

// PieceSize returns the size in bytes of piece index, accounting for the
// shorter final piece.
func (i *Info) PieceSize(index int) int64 {
	if index < len(i.pieces)-1 {
		return i.pieceLength
	}
	if rem := i.totalSize % i.pieceLength; rem != 0 {
		return rem
	}
	return i.pieceLength
}

// String renders a short human-readable summary for verbose logging.
func (i *Info) String() string {
	return fmt.Sprintf("Info{name: %s, size: %d, announce: %s, hash: %x}",
		i.fileName, i.totalSize, i.announce, i.infoHash)
}
