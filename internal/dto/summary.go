package dto

// SummaryQuery mirrors GET /summary filters.
type SummaryQuery struct {
	AcademicYear string `form:"academicYear"`
	Department   string `form:"department"`
}
