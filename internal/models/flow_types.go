// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents one of the mutually exclusive intake dialogues.
type FlowType string

// StateType represents a specific step within a flow.
type StateType string

// DataKey names a collected field.
type DataKey string

// Flow type constants.
const (
	FlowTypeNone    FlowType = ""
	FlowTypePatient FlowType = "patient"
	FlowTypeOther   FlowType = "other"
	FlowTypeStudent FlowType = "student"
)

// Router state.
const (
	StateChoose StateType = "choose"
)

// Patient flow states, including the Type-1 sub-path.
const (
	StatePatientCollect StateType = "p_collect"
	StatePatientConfirm StateType = "p_confirm"
	StatePatientType    StateType = "p_type"
	StatePatientYears   StateType = "p_years"
	StatePatientValues  StateType = "p_values"
	StatePatientGoal    StateType = "p_goal"
	StateType1Intro     StateType = "t1_intro" // transient, never awaits input
	StateType1Answers   StateType = "t1_answers"
	StateType1Step      StateType = "t1_step"
	StateType1Focus     StateType = "t1_focus"
)

// Other-concern flow states.
const (
	StateOtherCollect StateType = "o_collect"
)

// Student flow states.
const (
	StateStudentCollect StateType = "s_collect"
	StateStudentConfirm StateType = "s_confirm"
	StateStudentBest    StateType = "s_best"
	StateStudentGoal    StateType = "s_goal"
	StateStudentWebinar StateType = "s_webinar"
)

// Field keys collected across flows.
const (
	DataKeyName              DataKey = "name"
	DataKeyAge               DataKey = "age"
	DataKeyEmail             DataKey = "email"
	DataKeyCurrentMedication DataKey = "current_medication"
	DataKeyContactNumber     DataKey = "contact_number"
	DataKeyOtherConcern      DataKey = "other_concern"
	DataKeyOtherSince        DataKey = "other_since"

	DataKeyDiabetesType    DataKey = "diabetes_type"
	DataKeyDiabetesYears   DataKey = "diabetes_years"
	DataKeyLatestFastingPP DataKey = "latest_fasting_pp"
	DataKeyMainGoal        DataKey = "main_goal"

	DataKeyType1SinceDiagnosed DataKey = "type1_since_diagnosed"
	DataKeyType1LatestValues   DataKey = "type1_latest_values"
	DataKeyType1HighLow        DataKey = "type1_high_low"
	DataKeyType1Symptoms       DataKey = "type1_symptoms"

	DataKeyBestDescribes   DataKey = "best_describes"
	DataKeyTrainingGoal    DataKey = "training_goal"
	DataKeyWebinarInterest DataKey = "webinar_interest"
)

// IsValid reports whether ft is a known flow type. FlowTypeNone is valid.
func (ft FlowType) IsValid() bool {
	switch ft {
	case FlowTypeNone, FlowTypePatient, FlowTypeOther, FlowTypeStudent:
		return true
	default:
		return false
	}
}
