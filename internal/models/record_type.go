package models

import "strings"

// RecordType identifies a category of faculty activity.
type RecordType string

const (
	RecordAward           RecordType = "award"
	RecordBook            RecordType = "book"
	RecordBookChapter     RecordType = "book_chapter"
	RecordPatent          RecordType = "patent"
	RecordJournal         RecordType = "journal"
	RecordConferencePaper RecordType = "conference_paper"
	RecordVisit           RecordType = "visit"
	RecordEvent           RecordType = "event"
	RecordResearchGrant   RecordType = "research_grant"
	RecordConsultancy     RecordType = "consultancy"
	RecordMembership      RecordType = "membership"
	RecordCertification   RecordType = "certification"
	RecordPhDGuidance     RecordType = "phd_guidance"
	RecordMOU             RecordType = "mou"
)

// FieldKind describes how a detail field is validated and rendered.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldDate   FieldKind = "date"
	FieldNumber FieldKind = "number"
	FieldEnum   FieldKind = "enum"
)

// FieldSpec declares one type-specific detail field.
type FieldSpec struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

// RecordTypeSpec declares a record type, its detail fields and export columns.
// SubtypeField names the enum field used for the summary breakdown, if any.
type RecordTypeSpec struct {
	Type         RecordType  `json:"type"`
	Label        string      `json:"label"`
	Fields       []FieldSpec `json:"fields"`
	SubtypeField string      `json:"subtypeField,omitempty"`
}

// Subtypes returns the options of the breakdown field.
func (s RecordTypeSpec) Subtypes() []string {
	if s.SubtypeField == "" {
		return nil
	}
	for _, f := range s.Fields {
		if f.Key == s.SubtypeField {
			return f.Options
		}
	}
	return nil
}

// EventTypes are the seminar-like subtypes broken down in summaries.
var EventTypes = []string{"Seminar", "Conference", "Workshop", "FDP", "GuestLecture"}

var (
	scopeOptions = []string{"Institutional", "State", "National", "International"}
	dateOfEvent  = FieldSpec{Key: "date", Label: "Date", Kind: FieldDate, Required: true}
	fromDate     = FieldSpec{Key: "fromDate", Label: "From", Kind: FieldDate, Required: true}
	toDate       = FieldSpec{Key: "toDate", Label: "To", Kind: FieldDate}
)

var recordTypeRegistry = []RecordTypeSpec{
	{Type: RecordAward, Label: "Award", Fields: []FieldSpec{
		{Key: "awardingBody", Label: "Awarding Body", Kind: FieldText, Required: true},
		{Key: "scope", Label: "Scope", Kind: FieldEnum, Required: true, Options: scopeOptions},
		dateOfEvent,
	}},
	{Type: RecordBook, Label: "Book", Fields: []FieldSpec{
		{Key: "authors", Label: "Authors", Kind: FieldText, Required: true},
		{Key: "publisher", Label: "Publisher", Kind: FieldText, Required: true},
		{Key: "isbn", Label: "ISBN", Kind: FieldText, Required: true},
		{Key: "publicationDate", Label: "Publication Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordBookChapter, Label: "Book Chapter", Fields: []FieldSpec{
		{Key: "bookTitle", Label: "Book Title", Kind: FieldText, Required: true},
		{Key: "publisher", Label: "Publisher", Kind: FieldText, Required: true},
		{Key: "isbn", Label: "ISBN", Kind: FieldText},
		{Key: "publicationDate", Label: "Publication Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordPatent, Label: "Patent", Fields: []FieldSpec{
		{Key: "applicationNumber", Label: "Application Number", Kind: FieldText, Required: true},
		{Key: "inventors", Label: "Inventors", Kind: FieldText, Required: true},
		{Key: "patentStatus", Label: "Patent Status", Kind: FieldEnum, Required: true, Options: []string{"Filed", "Published", "Granted"}},
		{Key: "filingDate", Label: "Filing Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordJournal, Label: "Journal Publication", Fields: []FieldSpec{
		{Key: "journalName", Label: "Journal", Kind: FieldText, Required: true},
		{Key: "authors", Label: "Authors", Kind: FieldText, Required: true},
		{Key: "issn", Label: "ISSN", Kind: FieldText},
		{Key: "volume", Label: "Volume", Kind: FieldText},
		{Key: "indexing", Label: "Indexing", Kind: FieldEnum, Required: true, Options: []string{"Scopus", "SCI", "WoS", "UGC", "Other"}},
		{Key: "publicationDate", Label: "Publication Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordConferencePaper, Label: "Conference Paper", Fields: []FieldSpec{
		{Key: "conferenceName", Label: "Conference", Kind: FieldText, Required: true},
		{Key: "venue", Label: "Venue", Kind: FieldText},
		{Key: "scope", Label: "Scope", Kind: FieldEnum, Required: true, Options: scopeOptions},
		dateOfEvent,
	}},
	{Type: RecordVisit, Label: "Industrial / Academic Visit", Fields: []FieldSpec{
		{Key: "institution", Label: "Institution", Kind: FieldText, Required: true},
		{Key: "purpose", Label: "Purpose", Kind: FieldText, Required: true},
		fromDate,
		toDate,
	}},
	{Type: RecordEvent, Label: "Seminar / Workshop", SubtypeField: "eventType", Fields: []FieldSpec{
		{Key: "eventType", Label: "Event Type", Kind: FieldEnum, Required: true, Options: EventTypes},
		{Key: "participation", Label: "Participation", Kind: FieldEnum, Required: true, Options: []string{"Organized", "Attended", "ResourcePerson"}},
		{Key: "organizer", Label: "Organizer", Kind: FieldText, Required: true},
		fromDate,
		toDate,
	}},
	{Type: RecordResearchGrant, Label: "Research Grant", Fields: []FieldSpec{
		{Key: "fundingAgency", Label: "Funding Agency", Kind: FieldText, Required: true},
		{Key: "amount", Label: "Amount", Kind: FieldNumber, Required: true},
		{Key: "sanctionDate", Label: "Sanction Date", Kind: FieldDate, Required: true},
		{Key: "durationMonths", Label: "Duration (months)", Kind: FieldNumber},
	}},
	{Type: RecordConsultancy, Label: "Consultancy", Fields: []FieldSpec{
		{Key: "client", Label: "Client", Kind: FieldText, Required: true},
		{Key: "amount", Label: "Amount", Kind: FieldNumber},
		{Key: "startDate", Label: "Start Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordMembership, Label: "Professional Membership", Fields: []FieldSpec{
		{Key: "body", Label: "Professional Body", Kind: FieldText, Required: true},
		{Key: "membershipType", Label: "Membership Type", Kind: FieldEnum, Required: true, Options: []string{"Life", "Annual", "Student"}},
		{Key: "membershipNumber", Label: "Membership Number", Kind: FieldText},
	}},
	{Type: RecordCertification, Label: "Certification", Fields: []FieldSpec{
		{Key: "provider", Label: "Provider", Kind: FieldText, Required: true},
		{Key: "platform", Label: "Platform", Kind: FieldText},
		{Key: "completionDate", Label: "Completion Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordPhDGuidance, Label: "PhD Guidance", Fields: []FieldSpec{
		{Key: "scholarName", Label: "Scholar", Kind: FieldText, Required: true},
		{Key: "university", Label: "University", Kind: FieldText, Required: true},
		{Key: "phdStatus", Label: "PhD Status", Kind: FieldEnum, Required: true, Options: []string{"Ongoing", "Submitted", "Awarded"}},
		{Key: "registrationDate", Label: "Registration Date", Kind: FieldDate, Required: true},
	}},
	{Type: RecordMOU, Label: "MoU", Fields: []FieldSpec{
		{Key: "partner", Label: "Partner Organisation", Kind: FieldText, Required: true},
		{Key: "signedDate", Label: "Signed On", Kind: FieldDate, Required: true},
		{Key: "validUntil", Label: "Valid Until", Kind: FieldDate},
	}},
}

var recordTypeIndex = func() map[RecordType]RecordTypeSpec {
	idx := make(map[RecordType]RecordTypeSpec, len(recordTypeRegistry))
	for _, spec := range recordTypeRegistry {
		idx[spec.Type] = spec
	}
	return idx
}()

// RecordTypes returns every registered record type in display order.
func RecordTypes() []RecordTypeSpec {
	out := make([]RecordTypeSpec, len(recordTypeRegistry))
	copy(out, recordTypeRegistry)
	return out
}

// LookupRecordType resolves a path or query value to a registered type. Hyphens are accepted for underscores.
func LookupRecordType(raw string) (RecordTypeSpec, bool) {
	key := RecordType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	spec, ok := recordTypeIndex[key]
	return spec, ok
}
