package qrshare

import (
	"bytes"
	"testing"
)

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, "https://example.com/s/Ab12Cd34", Options{}); err != nil {
		t.Fatal(err)
	}
	// PNG signature.
	if buf.Len() < 8 || !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("output does not look like a PNG (%d bytes)", buf.Len())
	}
}

func TestEncodePNGEmptyURL(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodePNG(&buf, "", Options{}); err == nil {
		t.Error("empty url should be rejected")
	}
}
