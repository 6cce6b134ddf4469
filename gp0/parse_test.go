package gp0

import (
	"slices"
	"strings"
	"testing"
)

func TestParseWords(t *testing.T) {
	in := "02ff00ff\n\n0x0014000A\n  00050005  \nnot a word\n1ffffffff\n"
	words, err := ParseWords(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0x02ff00ff, 0x0014000a, 0x00050005}
	if !slices.Equal(words, want) {
		t.Errorf("got %#x, want %#x", words, want)
	}
}
