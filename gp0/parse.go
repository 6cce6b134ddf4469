package gp0

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseWords reads a command capture with one hexadecimal word per line. An
// optional 0x prefix is accepted. Blank and unparsable lines are ignored.
func ParseWords(r io.Reader) ([]uint32, error) {
	var words []uint32
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(strings.TrimPrefix(line, "0x"), "0X")
		if line == "" {
			continue
		}
		w, err := strconv.ParseUint(line, 16, 32)
		if err != nil {
			continue
		}
		words = append(words, uint32(w))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gp0: reading command capture: %w", err)
	}
	return words, nil
}
