package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAgentID checks that parsing never panics and that accepted IDs
// round-trip through String.
func FuzzParseAgentID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE consents;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAgentID(input)
		if err == nil {
			roundTrip, err2 := ParseAgentID(id.String())
			if err2 != nil {
				t.Errorf("valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed ID value")
			}
			if id.IsNil() {
				t.Error("nil ID was accepted")
			}
		}
		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseHash checks that accepted hashes are always canonical.
func FuzzParseHash(f *testing.F) {
	f.Add("")
	f.Add("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	f.Add("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855")

	f.Fuzz(func(t *testing.T, input string) {
		h, err := ParseHash(input)
		if err != nil {
			return
		}
		if len(h) != HashLength {
			t.Errorf("accepted hash of length %d", len(h))
		}
		again, err := ParseHash(h.String())
		if err != nil || again != h {
			t.Error("hash is not canonical")
		}
	})
}
