package models

// Record layout shared by every collection. Rows are positional string cells.
const (
	// ColumnPhone holds the contact number in both collections.
	ColumnPhone = 3
	// ColumnStudentOptOut is the students "take follow-ups" column.
	ColumnStudentOptOut = 12
	// ColumnPatientOptOut is the patients "take follow-ups" column.
	ColumnPatientOptOut = 19

	StudentRowWidth = 13
	PatientRowWidth = 20
)

// Record ID prefixes.
const (
	StudentRecordPrefix = "STU-"
	PatientRecordPrefix = "PAT-"
)

// OptOutColumn returns the follow-up opt-out column for a flow's collection.
func OptOutColumn(flow FlowType) int {
	if flow == FlowTypeStudent {
		return ColumnStudentOptOut
	}
	return ColumnPatientOptOut
}

// Cell returns row[i] or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
