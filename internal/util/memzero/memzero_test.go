package memzero_test

import (
	"bytes"
	"testing"

	"cipherchat/internal/util/memzero"
)

func TestZeroAll(t *testing.T) {
	a := []byte{1, 2, 3}
	b := bytes.Repeat([]byte{0xff}, 40)
	memzero.ZeroAll(a, nil, b)
	if !bytes.Equal(a, make([]byte, 3)) || !bytes.Equal(b, make([]byte, 40)) {
		t.Fatalf("buffers not wiped: %x %x", a, b)
	}
}
