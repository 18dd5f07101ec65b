package board

import (
	"strconv"
	"strings"
)

// CompareFirmware orders firmware markers such as "v2" or "1.4.1".
// Dot-separated numeric fields are compared numerically after stripping a
// leading "v"; non-numeric fields fall back to string comparison. Returns
// -1, 0 or 1.
func CompareFirmware(a, b string) int {
	av := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bv := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")

	n := len(av)
	if len(bv) > n {
		n = len(bv)
	}
	for i := 0; i < n; i++ {
		af, bf := "", ""
		if i < len(av) {
			af = av[i]
		}
		if i < len(bv) {
			bf = bv[i]
		}

		an, aerr := strconv.Atoi(af)
		bn, berr := strconv.Atoi(bf)
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(af, bf); c != 0 {
			return c
		}
	}
	return 0
}
