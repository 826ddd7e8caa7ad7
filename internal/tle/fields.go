package tle

import (
	"fmt"
	"strconv"
	"strings"
)

// numericField is a column range read as a number by the SGP4 library,
// together with the exact string it hands to strconv.
type numericField struct {
	name    string
	line    int
	end     int // the field is only checked when the line reaches this column
	integer bool
	value   func(line string) string
}

// The SGP4 library slices these columns without trimming and exits the
// process on a parse error, so they must be checked with the same expressions.
var numericFields = []numericField{
	{"catalog number", 1, 7, true, func(l string) string { return strings.TrimSpace(l[2:7]) }},
	{"epoch year", 1, 20, true, func(l string) string { return l[18:20] }},
	{"epoch day", 1, 32, false, func(l string) string { return l[20:32] }},
	{"mean motion derivative", 1, 43, false, func(l string) string { return strings.Replace(l[33:43], " ", "", 2) }},
	{"mean motion second derivative", 1, 52, false, func(l string) string {
		return strings.Replace(l[44:45]+"."+l[45:50]+"e"+l[50:52], " ", "", 2)
	}},
	{"bstar", 1, 61, false, func(l string) string {
		return strings.Replace(l[53:54]+"."+l[54:59]+"e"+l[59:61], " ", "", 2)
	}},
	{"inclination", 2, 16, false, func(l string) string { return strings.Replace(l[8:16], " ", "", 2) }},
	{"right ascension", 2, 25, false, func(l string) string { return strings.Replace(l[17:25], " ", "", 2) }},
	{"eccentricity", 2, 33, false, func(l string) string { return "." + l[26:33] }},
	{"argument of perigee", 2, 42, false, func(l string) string { return strings.Replace(l[34:42], " ", "", 2) }},
	{"mean anomaly", 2, 51, false, func(l string) string { return strings.Replace(l[43:51], " ", "", 2) }},
	{"mean motion", 2, 63, false, func(l string) string { return strings.Replace(l[52:63], " ", "", 2) }},
}

// CheckNumericFields reports the first numeric field the SGP4 library would
// fail to parse. Fields lying past the end of a short line are not checked.
func CheckNumericFields(line1, line2 string) error {
	for _, f := range numericFields {
		line := line1
		if f.line == 2 {
			line = line2
		}
		if len(line) < f.end {
			continue
		}
		s := f.value(line)
		var err error
		if f.integer {
			_, err = strconv.ParseInt(s, 10, 0)
		} else {
			_, err = strconv.ParseFloat(s, 64)
		}
		if err != nil {
			return fmt.Errorf("line%d %s: invalid number %q", f.line, f.name, s)
		}
	}
	return nil
}
