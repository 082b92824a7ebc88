package codec

import (
	"testing"
)

func fuzzRoundTrip(f *testing.F, c MessageCodec) {
	f.Fuzz(func(t *testing.T, in []byte) {
		v, err := c.DecodeMessage(in)
		if err != nil {
			return
		}
		out, err := c.EncodeMessage(v)
		if err != nil {
			t.Fatalf("decoded value %s does not re-encode: %v", v, err)
		}
		again, err := c.DecodeMessage(out)
		if err != nil {
			t.Fatalf("re-encoded value does not decode: %v", err)
		}
		if !v.Equal(again) {
			t.Fatalf("round trip mismatch: %s != %s", v, again)
		}
	})
}

func FuzzStandardDecode(f *testing.F) {
	for _, fx := range fixtures() {
		if buf, err := Standard.EncodeMessage(fx.value); err == nil {
			f.Add(buf)
		}
	}
	f.Add([]byte{9, 2, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0})
	f.Add([]byte{13, 255, 0xff, 0xff, 0xff, 0xff})
	fuzzRoundTrip(f, Standard)
}

func FuzzJSONDecode(f *testing.F) {
	for _, fx := range fixtures() {
		if buf, err := JSON.EncodeMessage(fx.value); err == nil {
			f.Add(buf)
		}
	}
	f.Add([]byte(`{"method":"x","args":[1,2.5,"s"]}`))
	f.Add([]byte(`[1,`))
	fuzzRoundTrip(f, JSON)
}

func FuzzStandardEnvelope(f *testing.F) {
	f.Add([]byte{0, 3, 42, 0, 0, 0})
	f.Add([]byte{1, 7, 4, 'f', 'a', 'i', 'l', 7, 0, 0})
	f.Fuzz(func(t *testing.T, in []byte) {
		_, _ = Standard.DecodeEnvelope(in)
		_, _ = Standard.DecodeMethodCall(in)
	})
}
