package metainfo

import (
	"encoding/hex"
	"testing"
)

// fixtureTorrent is a hand-built single-file .torrent: one piece, the
// 11-byte payload "hello world". Generated from a reference bencoder so the
// expected info_hash below is ground truth, not derived from this package.
const fixtureTorrent = "d8:announce35:http://tracker.example.com/announce4:infod6:lengthi11e4:name8:test.txt12:piece lengthi11e6:pieces20:*\xael5\xc9O\xcf\xb4\x15\xdb\xe9_@\x8b\x9c\xe9\x1e\xe8F\xedee"

const fixtureInfoHash = "9fa322a7427b25ff54bad2a834edd6d334d3bf56"

func TestParseFixture(t *testing.T) {
	info, err := Parse([]byte(fixtureTorrent))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if info.Announce() != "http://tracker.example.com/announce" {
		t.Errorf("Announce = %q", info.Announce())
	}
	if info.FileName() != "test.txt" {
		t.Errorf("FileName = %q", info.FileName())
	}
	if info.TotalSize() != 11 {
		t.Errorf("TotalSize = %d", info.TotalSize())
	}
	if info.PieceLength() != 11 {
		t.Errorf("PieceLength = %d", info.PieceLength())
	}
	if info.NumPieces() != 1 {
		t.Fatalf("NumPieces = %d, want 1", info.NumPieces())
	}
	if info.PieceSize(0) != 11 {
		t.Errorf("PieceSize(0) = %d, want 11", info.PieceSize(0))
	}

	want, err := hex.DecodeString(fixtureInfoHash)
	if err != nil {
		t.Fatal(err)
	}
	got := info.InfoHash()
	if hex.EncodeToString(got[:]) != hex.EncodeToString(want) {
		t.Errorf("InfoHash = %x, want %x", got, want)
	}
}

func TestParseRejectsMultiFile(t *testing.T) {
	// "files" present alongside "length" in info.
	data := "d8:announce4:http4:infod5:filesle6:lengthi11e4:name1:x12:piece lengthi11e6:pieces20:aaaaaaaaaaaaaaaaaaaaee"
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("expected error for multi-file torrent")
	}
}

func TestParseRejectsBadPieceCount(t *testing.T) {
	// length implies 2 pieces but only one 20-byte hash is present.
	data := "d8:announce4:http4:infod6:lengthi20e4:name1:x12:piece lengthi11e6:pieces20:aaaaaaaaaaaaaaaaaaaaee"
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("expected error for mismatched piece count")
	}
}

func TestPieceSizeShorterFinalPiece(t *testing.T) {
	// total_size=25, piece_length=10 -> 3 pieces, last is 5 bytes.
	hashes := ""
	for i := 0; i < 3; i++ {
		hashes += "aaaaaaaaaaaaaaaaaaaa"
	}
	data := "d8:announce4:http4:infod6:lengthi25e4:name1:x12:piece lengthi10e6:pieces" +
		"60:" + hashes + "ee"
	info, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.NumPieces() != 3 {
		t.Fatalf("NumPieces = %d, want 3", info.NumPieces())
	}
	if info.PieceSize(0) != 10 || info.PieceSize(1) != 10 {
		t.Errorf("expected full pieces of 10, got %d %d", info.PieceSize(0), info.PieceSize(1))
	}
	if info.PieceSize(2) != 5 {
		t.Errorf("PieceSize(2) = %d, want 5", info.PieceSize(2))
	}
}
