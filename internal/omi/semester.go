package omi

import (
	"fmt"
	"regexp"
)

// Semester identifiers look like "2024_S2". The "YYYY_S{1,2}" shape sorts
// correctly as a plain string, which is what the latest-semester queries
// rely on.
var semesterRe = regexp.MustCompile(`^\d{4}_S[12]$`)

// ValidSemester reports whether s is a well-formed semester identifier.
func ValidSemester(s string) bool {
	return semesterRe.MatchString(s)
}

// omiFilenameRe matches official OMI file names such as QI_20242_VALORI.csv
// or QI_20251_ZONE.csv: 4-digit year immediately followed by the semester
// digit.
var omiFilenameRe = regexp.MustCompile(`(?i)(\d{4})([12])_(?:VALORI|ZONE)`)

// SemesterFromFilename extracts the semester from an official OMI file
// name, e.g. "QI_20242_VALORI.csv" -> "2024_S2". Returns "" when the name
// does not carry one.
func SemesterFromFilename(name string) string {
	m := omiFilenameRe.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s_S%s", m[1], m[2])
}
