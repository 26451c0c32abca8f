package bencode

import (
	"testing"

	"torrentleech/internal/leecherr"
)

func mustDecode(t *testing.T, s string) Value {
	t.Helper()
	v, err := Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode(%q): %v", s, err)
	}
	return v
}

func TestRoundTripAllKinds(t *testing.T) {
	cases := []Value{
		Int64(0),
		Int64(-42),
		Int64(1234567890),
		String(""),
		String("spam"),
		{Kind: KindList, List: []Value{Int64(1), String("a"), {Kind: KindList}}},
		{Kind: KindDict, Dict: []DictEntry{
			{Key: "bar", Value: String("spam")},
			{Key: "foo", Value: Int64(42)},
		}},
	}

	for _, v := range cases {
		encoded := Encode(v)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)): %v", v, err)
		}
		if !Equal(v, decoded) {
			t.Errorf("round trip mismatch: %+v != %+v (encoded %q)", v, decoded, encoded)
		}
	}
}

func TestDictKeysSortedOnEncode(t *testing.T) {
	v := Value{Kind: KindDict, Dict: []DictEntry{
		{Key: "zebra", Value: Int64(1)},
		{Key: "apple", Value: Int64(2)},
	}}
	got := string(Encode(v))
	want := "d5:applei2e5:zebrai1ee"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestDecodeInvalidInteger(t *testing.T) {
	cases := []string{"i-0e", "i01e", "ie", "i--1e", "i1"}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		if err == nil {
			t.Errorf("Decode(%q): expected error, got nil", c)
		}
		if !leecherr.Is(err, leecherr.Codec) {
			t.Errorf("Decode(%q): expected Codec error, got %v", c, err)
		}
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	_, err := Decode([]byte("5:ab"))
	if err == nil {
		t.Fatal("expected error for overrunning string length")
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	_, err := Decode([]byte("i1eXXX"))
	if err == nil {
		t.Fatal("expected error for trailing bytes")
	}
}

func TestDecodeUnexpectedEOF(t *testing.T) {
	cases := []string{"", "d", "l", "i", "d3:foo"}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		if err == nil {
			t.Errorf("Decode(%q): expected error, got nil", c)
		}
	}
}

func TestDictPreservesInsertionOrderUntilEncode(t *testing.T) {
	v := mustDecode(t, "d4:name4:spam3:agei30ee")
	if len(v.Dict) != 2 || v.Dict[0].Key != "name" || v.Dict[1].Key != "age" {
		t.Fatalf("expected decode order preserved, got %+v", v.Dict)
	}
}

func TestRawSpanCapturesExactBytes(t *testing.T) {
	data := []byte("d4:infod6:lengthi1024eee")
	v, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := v.Get("info")
	if !ok {
		t.Fatal("missing info key")
	}
	want := "d6:lengthi1024ee"
	if string(info.Raw) != want {
		t.Errorf("Raw = %q, want %q", info.Raw, want)
	}
}

func TestGetHelpers(t *testing.T) {
	v := mustDecode(t, "d4:name5:hello12:piece lengthi16384ee")

	name, err := v.GetString("name")
	if err != nil || string(name) != "hello" {
		t.Errorf("GetString(name) = %q, %v", name, err)
	}

	pl, err := v.GetInt("piece length")
	if err != nil || pl != 16384 {
		t.Errorf("GetInt(piece length) = %d, %v", pl, err)
	}

	if _, err := v.GetString("missing"); err == nil {
		t.Error("expected error for missing key")
	}
}
