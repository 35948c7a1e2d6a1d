package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// AcademicYearFor buckets a date into its "YYYY-YY" academic year. June starts a new year.
func AcademicYearFor(t time.Time) string {
	year := t.Year()
	if t.Month() < time.June {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// ValidateAcademicYear checks the "YYYY-YY" shape and that the suffix follows the start year.
func ValidateAcademicYear(value string) error {
	if !academicYearPattern.MatchString(value) {
		return appErrors.Clone(appErrors.ErrValidation, "academicYear must look like 2024-25")
	}
	start, _ := strconv.Atoi(value[:4])
	suffix, _ := strconv.Atoi(value[5:])
	if suffix != (start+1)%100 {
		return appErrors.Clone(appErrors.ErrValidation, "academicYear must span consecutive years")
	}
	return nil
}
