package deck

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePosition parses a well or tip position such as "A1" or "h12" into zero-based
// row and column indices.
func ParsePosition(pos string) (row, col int, err error) {
	pos = strings.ToUpper(strings.TrimSpace(pos))
	if len(pos) < 2 || pos[0] < 'A' || pos[0] > 'Z' {
		return 0, 0, fmt.Errorf("invalid position %q", pos)
	}
	n, err := strconv.Atoi(pos[1:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("invalid position %q", pos)
	}
	return int(pos[0] - 'A'), n - 1, nil
}

// FormatPosition is the inverse of ParsePosition.
func FormatPosition(row, col int) string {
	return fmt.Sprintf("%c%d", 'A'+row, col+1)
}

type grid struct {
	rows, cols int
}

func (g grid) index(pos string) (int, error) {
	r, c, err := ParsePosition(pos)
	if err != nil {
		return 0, err
	}
	if r >= g.rows || c >= g.cols {
		return 0, fmt.Errorf("position %s outside %dx%d grid", pos, g.rows, g.cols)
	}
	return r*g.cols + c, nil
}
