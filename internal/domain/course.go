package domain

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidCourseID is returned for identifiers that cannot name a course.
var ErrInvalidCourseID = errors.New("invalid course id")

var courseIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.]{1,23}$`)

var courseIDStripper = strings.NewReplacer(" ", "", "-", "", "_", "", "\t", "")

// NormalizeCourseID canonicalizes a course identifier so that "cse 2331",
// "CSE-2331" and "CSE2331" all map to the same key.
func NormalizeCourseID(raw string) (string, error) {
	id := strings.ToUpper(courseIDStripper.Replace(strings.TrimSpace(raw)))
	if !courseIDPattern.MatchString(id) {
		return "", ErrInvalidCourseID
	}
	return id, nil
}
