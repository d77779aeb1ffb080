package pg

import (
	"fmt"
	"strings"
)

// pagination returns the LIMIT/OFFSET suffix of a listing. No limit means no pagination.
func pagination(page, limit int) string {
	switch {
	case limit <= 0:
		return ""
	case page <= 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	default:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, page*limit)
	}
}

// namePattern converts a user pattern of parcel names to a sql pattern:
// "*" matches any sequence, "?" matches one character and a "(?i)" suffix ignores the case.
// Returns the operator to use with the pattern: =, LIKE or ILIKE
func namePattern(value string) (string, string) {
	operator := "LIKE"
	if v := strings.TrimSuffix(value, "(?i)"); v != value {
		value, operator = v, "ILIKE"
	}
	if operator == "LIKE" && !strings.ContainsAny(value, "*?") {
		return value, "="
	}
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`, "*", "%", "?", "_")
	return r.Replace(value), operator
}

// filter accumulates the conditions of a WHERE clause and their positional parameters
type filter struct {
	args  []interface{}
	conds []string
}

// add appends a condition. Each %d of cond is replaced by the position ($n) of the corresponding arg
func (f *filter) add(cond string, args ...interface{}) {
	positions := make([]interface{}, len(args))
	for i := range args {
		positions[i] = len(f.args) + i + 1
	}
	f.args = append(f.args, args...)
	f.conds = append(f.conds, fmt.Sprintf(cond, positions...))
}

func (f filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}
