// Package rank maps a free-text directory title onto a rank abbreviation.
package rank

import "strings"

// Code is one of the abbreviations in Table, or empty.
type Code string

const (
	BGen     Code = "BGen"
	Col      Code = "Col"
	LtCol    Code = "Lt Col"
	Maj      Code = "Maj"
	Capt     Code = "Capt"
	FirstLt  Code = "1stLt"
	SecondLt Code = "2ndLt"
	MSgt     Code = "MSgt"
	TSgt     Code = "TSgt"
	SSgt     Code = "SSgt"
	SrA      Code = "SrA"
	A1C      Code = "A1C"
	Amn      Code = "Amn"
	Cpl      Code = "Cpl"
	LCpl     Code = "LCpl"
)

// Table is scanned in this order. It must not be re-sorted.
var Table = []Code{
	BGen, Col, LtCol, Maj, Capt, FirstLt, SecondLt,
	MSgt, TSgt, SSgt, SrA, A1C, Amn, Cpl, LCpl,
}

// Extract returns the first table entry found in title. An occurrence that
// sits inside an occurrence of a longer entry does not count, so "Col" is
// not reported for "Lt Col, USAF" nor "Cpl" for "LCpl".
func Extract(title string) Code {
	if title == "" {
		return ""
	}
	for _, code := range Table {
		for _, pos := range occurrences(title, string(code)) {
			if !shadowed(title, code, pos) {
				return code
			}
		}
	}
	return ""
}

// shadowed reports whether the occurrence of code at pos lies within an
// occurrence of a longer table entry.
func shadowed(title string, code Code, pos int) bool {
	end := pos + len(code)
	for _, other := range Table {
		if len(other) <= len(code) || !strings.Contains(string(other), string(code)) {
			continue
		}
		for _, start := range occurrences(title, string(other)) {
			if start <= pos && end <= start+len(other) {
				return true
			}
		}
	}
	return false
}

func occurrences(s, sub string) []int {
	var out []int
	for i := 0; ; {
		j := strings.Index(s[i:], sub)
		if j < 0 {
			return out
		}
		out = append(out, i+j)
		i += j + 1
	}
}
