package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/faculty-records-api/pkg/errors"
)

func TestAcademicYearFor(t *testing.T) {
	cases := map[string]string{
		"2025-06-01": "2025-26",
		"2025-05-31": "2024-25",
		"2025-01-15": "2024-25",
		"2025-12-31": "2025-26",
		"2099-07-01": "2099-00",
		"2000-03-01": "1999-00",
		"2008-09-01": "2008-09",
	}
	for date, want := range cases {
		d, err := time.Parse("2006-01-02", date)
		require.NoError(t, err)
		require.Equal(t, want, AcademicYearFor(d), date)
	}
}

func TestValidateAcademicYear(t *testing.T) {
	for _, ok := range []string{"2024-25", "1999-00", "2009-10"} {
		require.NoError(t, ValidateAcademicYear(ok), ok)
	}
	for _, bad := range []string{"", "2024", "2024-2025", "24-25", "2024-26", "2024/25", "abcd-ef", " 2024-25"} {
		err := ValidateAcademicYear(bad)
		require.Error(t, err, bad)
		require.True(t, errors.Is(err, appErrors.ErrValidation), bad)
	}
}

func TestAcademicYearRoundTrip(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := start; d.Year() < 2022; d = d.AddDate(0, 0, 17) {
		require.NoError(t, ValidateAcademicYear(AcademicYearFor(d)))
	}
}
