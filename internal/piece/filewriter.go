package piece

import (
	"fmt"
	"os"

	"torrentleech/internal/leecherr"
)

// FileWriter writes verified pieces to their natural offset in the output
// file. Writes are always whole-piece; the file is created if absent and,
// whether new or existing, truncated or extended to the torrent's total size.
type FileWriter struct {
	f *os.File
}

// OpenFileWriter opens (creating if necessary) the output file at path and
// sizes it to totalSize.
func OpenFileWriter(path string, totalSize int64) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, leecherr.New(leecherr.Fatal, "piece.OpenFileWriter", fmt.Errorf("opening %q: %w", path, err))
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, leecherr.New(leecherr.Fatal, "piece.OpenFileWriter", fmt.Errorf("truncating %q: %w", path, err))
	}
	return &FileWriter{f: f}, nil
}

// WritePiece writes data at offset pieceIndex*pieceLength.
func (w *FileWriter) WritePiece(pieceIndex int, pieceLength int64, data []byte) error {
	pos := int64(pieceIndex) * pieceLength
	if _, err := w.f.WriteAt(data, pos); err != nil {
		return leecherr.New(leecherr.Fatal, "piece.FileWriter.WritePiece", fmt.Errorf("writing piece %d at offset %d: %w", pieceIndex, pos, err))
	}
	return nil
}

// Close releases the underlying file handle.
func (w *FileWriter) Close() error {
	return w.f.Close()
}
