package subject

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// idPadWidth is the zero padding of the numeric part of subject IDs.
const idPadWidth = 6

// FormatID builds a subject identifier, e.g. ("MR", 123) -> MR000123.
func FormatID(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, idPadWidth, n)
}

// ParseNumber extracts the exam counter from an identifier with the given
// prefix. Trailing suffix letters are ignored, so MR000123b parses to 123.
func ParseNumber(id, prefix string) (int, error) {
	if !strings.HasPrefix(id, prefix) {
		return 0, fmt.Errorf("id %q does not carry prefix %q", id, prefix)
	}
	rest := id[len(prefix):]
	digits := rest
	for i, r := range rest {
		if r < '0' || r > '9' {
			digits = rest[:i]
			break
		}
	}
	if digits == "" {
		return 0, fmt.Errorf("id %q has no numeric part", id)
	}
	return strconv.Atoi(digits)
}

// IsValidID reports whether id names a subject of this prefix.
func IsValidID(id, prefix string) bool {
	_, err := ParseNumber(id, prefix)
	return err == nil
}

// ResolveID canonicalises a command line subject argument. Bare numbers
// become full identifiers; anything already carrying the prefix is used
// verbatim.
func ResolveID(arg, prefix string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("empty subject identifier")
	}
	if n, err := strconv.Atoi(arg); err == nil {
		return FormatID(prefix, n), nil
	}
	if IsValidID(arg, prefix) {
		return arg, nil
	}
	return "", fmt.Errorf("subject identifier %q is neither a number nor a %s id", arg, prefix)
}

// List returns the subject IDs under root with the given prefix, sorted.
func List(root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read data root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if IsValidID(e.Name(), prefix) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// NextNumber returns one past the highest exam counter in use under root.
// An empty root starts at 1.
func NextNumber(root, prefix string) (int, error) {
	ids, err := List(root, prefix)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, id := range ids {
		n, err := ParseNumber(id, prefix)
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return next, nil
}
