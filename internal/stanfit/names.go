package stanfit

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapfit/pkg/core"
)

// FlatName converts a CmdStan column name like "theta.1.2" into the flat
// parameter name "theta[1,2]". Names without an all-numeric index suffix
// are returned unchanged.
func FlatName(column string) string {
	parts := strings.Split(column, ".")
	if len(parts) < 2 || parts[0] == "" {
		return column
	}
	for _, p := range parts[1:] {
		if _, err := strconv.Atoi(p); err != nil {
			return column
		}
	}
	return parts[0] + "[" + strings.Join(parts[1:], ",") + "]"
}

// isSamplerColumn reports whether a column is sampler bookkeeping
// (accept_stat__, treedepth__, ...) rather than a model quantity.
func isSamplerColumn(column string) bool {
	return strings.HasSuffix(column, "__")
}

// selectColumns picks the model quantities in file order, followed by lp__.
// It returns the positions of the kept columns and their flat names.
func selectColumns(columns []string) ([]int, []string) {
	var idx []int
	var names []string
	lp := -1
	for i, c := range columns {
		if c == core.LogProbName {
			lp = i
			continue
		}
		if isSamplerColumn(c) {
			continue
		}
		idx = append(idx, i)
		names = append(names, FlatName(c))
	}
	if lp >= 0 {
		idx = append(idx, lp)
		names = append(names, core.LogProbName)
	}
	return idx, names
}
