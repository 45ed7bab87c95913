package sanitize

import "fmt"

// Report is the ordered, human-readable account of what a sanitization
// pass removed or neutralized. Order reflects the order rules fired in.
type Report struct {
	Items   []string
	Warning string
}

// add appends a singleton descriptor, e.g. "Removed OpenAction".
func (r *Report) add(format string, args ...interface{}) {
	r.Items = append(r.Items, fmt.Sprintf(format, args...))
}

// addCount appends an aggregate descriptor only if n > 0, e.g.
// "Removed 7 external URLs".
func (r *Report) addCount(n int, noun string) {
	if n <= 0 {
		return
	}
	plural := "s"
	if n == 1 {
		plural = ""
	}
	r.add("Removed %d %s%s", n, noun, plural)
}

// merge appends another report's items and keeps the first non-empty
// warning seen.
func (r *Report) merge(other Report) {
	r.Items = append(r.Items, other.Items...)
	if r.Warning == "" {
		r.Warning = other.Warning
	}
}

func (r *Report) clean() bool {
	return len(r.Items) == 0
}
