package intake

import (
	"time"

	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// createdAtLayout matches JavaScript's Date.toISOString, which existing sheets already hold.
const createdAtLayout = "2006-01-02T15:04:05.000Z"

func timestamp(t time.Time) string { return t.UTC().Format(createdAtLayout) }

// StudentRow formats a completed student session as a students row.
func StudentRow(id string, f map[models.DataKey]string, createdAt time.Time, webinarLink string) []string {
	interest := f[models.DataKeyWebinarInterest]
	if interest == "" {
		interest = "Yes"
	}
	row := make([]string, models.StudentRowWidth)
	row[0] = id
	row[1] = f[models.DataKeyName]
	row[2] = f[models.DataKeyAge]
	row[models.ColumnPhone] = f[models.DataKeyContactNumber]
	row[4] = f[models.DataKeyEmail]
	// Two sheet columns both carry the self-description.
	row[5] = f[models.DataKeyBestDescribes]
	row[6] = f[models.DataKeyBestDescribes]
	row[7] = f[models.DataKeyTrainingGoal]
	row[8] = interest
	row[9] = webinarLink
	row[10] = timestamp(createdAt)
	row[models.ColumnStudentOptOut] = "Yes"
	return row
}

// PatientRow formats a completed patient or other-concern session as a patients row.
func PatientRow(id string, f map[models.DataKey]string, createdAt time.Time) []string {
	others := f[models.DataKeyOtherConcern]
	if others != "" && f[models.DataKeyOtherSince] != "" {
		others += " | Since: " + f[models.DataKeyOtherSince]
	}
	type1 := ""
	if flow.IsType1(f[models.DataKeyDiabetesType]) {
		type1 = "Yes"
	}
	row := make([]string, models.PatientRowWidth)
	row[0] = id
	row[1] = f[models.DataKeyName]
	row[2] = f[models.DataKeyAge]
	row[models.ColumnPhone] = f[models.DataKeyContactNumber]
	row[4] = f[models.DataKeyEmail]
	row[6] = f[models.DataKeyCurrentMedication]
	row[7] = f[models.DataKeyDiabetesType]
	row[8] = f[models.DataKeyDiabetesYears]
	row[9] = f[models.DataKeyLatestFastingPP]
	row[10] = f[models.DataKeyMainGoal]
	row[11] = timestamp(createdAt)
	row[13] = others
	row[14] = type1
	row[15] = f[models.DataKeyType1SinceDiagnosed]
	row[16] = f[models.DataKeyType1LatestValues]
	row[17] = f[models.DataKeyType1HighLow]
	row[18] = f[models.DataKeyType1Symptoms]
	row[models.ColumnPatientOptOut] = "Yes"
	return row
}

// recordFor builds the row for a completed session and names its collection.
func (e *Engine) recordFor(state models.FlowState, now time.Time) (string, []string) {
	if state.FlowType == models.FlowTypeStudent {
		id := util.GenerateRecordID(models.StudentRecordPrefix)
		return e.cfg.Students, StudentRow(id, state.StateData, now, e.machine.Links().Webinar)
	}
	id := util.GenerateRecordID(models.PatientRecordPrefix)
	return e.cfg.Patients, PatientRow(id, state.StateData, now)
}
