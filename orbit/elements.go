package orbit

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrParse is returned when a raw element-set document yields no usable records.
	ErrParse = errors.New("parse element sets")
	// ErrInvalidElementSet marks a single malformed two-line element record.
	ErrInvalidElementSet = errors.New("invalid element set")
	// ErrNoOrbitalData is returned when no record matches the requested target.
	ErrNoOrbitalData = errors.New("no orbital data for target")
)

const tleLineLength = 69

// ElementSet is one two-line element record. Name is the title line of a
// three-line document, or the catalog number when the document carries no
// title lines.
type ElementSet struct {
	Name          string
	CatalogNumber string
	Line1         string
	Line2         string
}

// ParseDocument splits a TLE document into element sets. Both the two-line and
// the titled three-line layouts are accepted, including "0 " prefixed titles.
// Records that fail validation are skipped; the document is rejected only when
// nothing valid remains.
func ParseDocument(doc []byte) ([]ElementSet, error) {
	lines := make([]string, 0, 64)
	scanner := bufio.NewScanner(bytes.NewReader(doc))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	var (
		sets    []ElementSet
		skipped int
		lastErr error
	)
	for i := 0; i < len(lines); {
		name := ""
		titled := !isLine(lines[i], '1')
		if titled {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
		}
		if i+1 >= len(lines) || !isLine(lines[i], '1') || !isLine(lines[i+1], '2') {
			skipped++
			lastErr = fmt.Errorf("%w: %q is not followed by a line pair", ErrInvalidElementSet, name)
			if !titled {
				// A stray line 1; the title case already consumed a line.
				i++
			}
			continue
		}

		set, err := NewElementSet(name, lines[i], lines[i+1])
		i += 2
		if err != nil {
			skipped++
			lastErr = err
			continue
		}
		sets = append(sets, set)
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no valid records (%d skipped): %v", ErrParse, skipped, lastErr)
	}
	return sets, nil
}

// NewElementSet validates a line pair and builds an ElementSet from it.
func NewElementSet(name, line1, line2 string) (ElementSet, error) {
	line1 = strings.TrimRight(line1, " \r")
	line2 = strings.TrimRight(line2, " \r")
	if err := validateLine(line1, '1'); err != nil {
		return ElementSet{}, err
	}
	if err := validateLine(line2, '2'); err != nil {
		return ElementSet{}, err
	}

	catalog := strings.TrimSpace(line1[2:7])
	if other := strings.TrimSpace(line2[2:7]); other != catalog {
		return ElementSet{}, fmt.Errorf("%w: catalog number mismatch %q != %q", ErrInvalidElementSet, catalog, other)
	}
	if err := validateFields(line1, line2); err != nil {
		return ElementSet{}, err
	}

	if name == "" {
		name = catalog
	}
	return ElementSet{
		Name:          name,
		CatalogNumber: catalog,
		Line1:         line1,
		Line2:         line2,
	}, nil
}

// Select returns the first set whose name (case-insensitive) or catalog number
// equals targetID. When nothing matches exactly, a name also matches on its
// title without the trailing parenthesised alias, so "ISS" selects
// "ISS (ZARYA)".
func Select(sets []ElementSet, targetID string) (ElementSet, error) {
	want := strings.TrimSpace(targetID)
	wantCatalog := strings.TrimLeft(want, "0")
	for _, s := range sets {
		if strings.EqualFold(strings.TrimSpace(s.Name), want) {
			return s, nil
		}
		if wantCatalog != "" && strings.TrimLeft(s.CatalogNumber, "0") == wantCatalog {
			return s, nil
		}
	}
	if want != "" {
		for _, s := range sets {
			if base, ok := withoutAlias(s.Name); ok && strings.EqualFold(base, want) {
				return s, nil
			}
		}
	}
	return ElementSet{}, fmt.Errorf("%w: %q", ErrNoOrbitalData, targetID)
}

// withoutAlias strips a trailing " (ALIAS)" from a title.
func withoutAlias(name string) (string, bool) {
	name = strings.TrimSpace(name)
	i := strings.LastIndex(name, " (")
	if i <= 0 || !strings.HasSuffix(name, ")") {
		return "", false
	}
	return strings.TrimSpace(name[:i]), true
}

func isLine(line string, number byte) bool {
	return len(line) >= 2 && line[0] == number && line[1] == ' '
}

func validateLine(line string, number byte) error {
	if len(line) != tleLineLength {
		return fmt.Errorf("%w: line %c has length %d, want %d", ErrInvalidElementSet, number, len(line), tleLineLength)
	}
	if !isLine(line, number) {
		return fmt.Errorf("%w: expected line %c", ErrInvalidElementSet, number)
	}
	want := line[tleLineLength-1]
	if want < '0' || want > '9' {
		return fmt.Errorf("%w: line %c checksum %q is not a digit", ErrInvalidElementSet, number, want)
	}
	if got := checksum(line); got != int(want-'0') {
		return fmt.Errorf("%w: line %c checksum %d, want %c", ErrInvalidElementSet, number, got, want)
	}
	return nil
}

// checksum is the modulo-10 sum of the digits in the first 68 columns, with
// each minus sign counting as one.
func checksum(line string) int {
	sum := 0
	for i := 0; i < tleLineLength-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// validateFields checks every column go-satellite's TLE parser reads, sliced
// and blank-stripped exactly as that parser does. The parser exits the process
// on the first column it cannot convert.
func validateFields(line1, line2 string) error {
	ints := []struct {
		name string
		raw  string
	}{
		{"catalog number", strings.TrimSpace(line1[2:7])},
		{"epoch year", line1[18:20]},
	}
	for _, f := range ints {
		if _, err := strconv.ParseInt(f.raw, 10, 0); err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidElementSet, f.name, f.raw)
		}
	}

	floats := []struct {
		name string
		raw  string
	}{
		{"epoch day", line1[20:32]},
		{"mean motion derivative", stripBlanks(line1[33:43])},
		{"mean motion second derivative", stripBlanks(line1[44:45] + "." + line1[45:50] + "e" + line1[50:52])},
		{"drag term", stripBlanks(line1[53:54] + "." + line1[54:59] + "e" + line1[59:61])},
		{"inclination", stripBlanks(line2[8:16])},
		{"right ascension", stripBlanks(line2[17:25])},
		{"eccentricity", "." + line2[26:33]},
		{"argument of perigee", stripBlanks(line2[34:42])},
		{"mean anomaly", stripBlanks(line2[43:51])},
		{"mean motion", stripBlanks(line2[52:63])},
	}
	for _, f := range floats {
		if _, err := strconv.ParseFloat(f.raw, 64); err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidElementSet, f.name, f.raw)
		}
	}
	return nil
}

// stripBlanks removes at most two spaces, matching go-satellite.
func stripBlanks(s string) string {
	return strings.Replace(s, " ", "", 2)
}
