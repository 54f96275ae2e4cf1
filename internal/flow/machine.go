// Package flow implements the intake dialogue as a pure transition function.
//
// A Machine never performs I/O. Advance takes the current session and one
// inbound text and returns the next session together with the effects the
// caller must execute, in order.
package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// EffectKind enumerates the side effects a transition can request.
type EffectKind int

const (
	// EffectSend asks the caller to send Text to the session identifier.
	EffectSend EffectKind = iota
	// EffectComplete asks the caller to persist the session, arm follow-ups and remove it.
	EffectComplete
)

// Effect is one side effect produced by a transition.
type Effect struct {
	Kind EffectKind
	Text string
}

func send(text string) Effect { return Effect{Kind: EffectSend, Text: text} }

var complete = Effect{Kind: EffectComplete}

// ErrInvalidState is returned when a session carries a (flow, step) pair the
// machine does not know.
var ErrInvalidState = errors.New("invalid flow state")

// Field lists for bulk steps, in the order users are asked to type them.
var (
	PatientFields = []models.DataKey{
		models.DataKeyName, models.DataKeyAge, models.DataKeyEmail,
		models.DataKeyCurrentMedication, models.DataKeyContactNumber,
	}
	OtherFields = []models.DataKey{
		models.DataKeyName, models.DataKeyAge, models.DataKeyEmail,
		models.DataKeyCurrentMedication, models.DataKeyContactNumber,
		models.DataKeyOtherConcern, models.DataKeyOtherSince,
	}
	StudentFields = []models.DataKey{
		models.DataKeyName, models.DataKeyAge, models.DataKeyEmail, models.DataKeyContactNumber,
	}
	Type1Fields = []models.DataKey{
		models.DataKeyType1SinceDiagnosed, models.DataKeyType1LatestValues,
		models.DataKeyType1HighLow, models.DataKeyType1Symptoms,
	}
)

type stepFunc func(m *Machine, s *models.FlowState, text string) []Effect

type step struct {
	flow   models.FlowType
	handle stepFunc
}

// steps is the (flow, step) table. A step only accepts sessions of its own flow.
var steps = map[models.StateType]step{
	models.StateChoose: {models.FlowTypeNone, (*Machine).choose},

	models.StatePatientCollect: {models.FlowTypePatient, (*Machine).patientCollect},
	models.StatePatientConfirm: {models.FlowTypePatient, (*Machine).patientConfirm},
	models.StatePatientType:    {models.FlowTypePatient, (*Machine).patientType},
	models.StatePatientYears:   {models.FlowTypePatient, (*Machine).patientYears},
	models.StatePatientValues:  {models.FlowTypePatient, (*Machine).patientValues},
	models.StatePatientGoal:    {models.FlowTypePatient, (*Machine).patientGoal},
	models.StateType1Answers:   {models.FlowTypePatient, (*Machine).type1Answers},
	models.StateType1Step:      {models.FlowTypePatient, (*Machine).type1Step},
	models.StateType1Focus:     {models.FlowTypePatient, (*Machine).type1Focus},

	models.StateOtherCollect: {models.FlowTypeOther, (*Machine).otherCollect},

	models.StateStudentCollect: {models.FlowTypeStudent, (*Machine).studentCollect},
	models.StateStudentConfirm: {models.FlowTypeStudent, (*Machine).studentConfirm},
	models.StateStudentBest:    {models.FlowTypeStudent, (*Machine).studentBest},
	models.StateStudentGoal:    {models.FlowTypeStudent, (*Machine).studentGoal},
	models.StateStudentWebinar: {models.FlowTypeStudent, (*Machine).studentWebinar},
}

// Machine advances intake sessions.
type Machine struct {
	links Links
}

// NewMachine creates a Machine. Blank links are filled with defaults.
func NewMachine(links Links) *Machine {
	return &Machine{links: links.WithDefaults()}
}

// Links returns the effective links.
func (m *Machine) Links() Links { return m.links }

// Start creates a session for identifier at the router step and returns the
// entry prompt. The inbound text that triggered it is not interpreted.
func (m *Machine) Start(identifier string, now time.Time) (models.FlowState, []Effect) {
	phone := util.PhoneFromIdentifier(identifier)
	s := models.FlowState{
		Identifier:   identifier,
		Phone:        phone,
		FlowType:     models.FlowTypeNone,
		CurrentState: models.StateChoose,
		StateData:    map[models.DataKey]string{models.DataKeyContactNumber: phone},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s, []Effect{send(MsgEntry)}
}

// Advance applies one inbound text to state. The input state is not mutated.
// Empty text re-prompts for a text message without advancing.
func (m *Machine) Advance(state models.FlowState, text string, now time.Time) (models.FlowState, []Effect, error) {
	if !state.FlowType.IsValid() {
		return state, nil, fmt.Errorf("%w: unknown flow %q", ErrInvalidState, state.FlowType)
	}
	st, ok := steps[state.CurrentState]
	if !ok || st.flow != state.FlowType {
		return state, nil, fmt.Errorf("%w: flow=%q step=%q", ErrInvalidState, state.FlowType, state.CurrentState)
	}
	if strings.TrimSpace(text) == "" {
		return state, []Effect{send(MsgNeedText)}, nil
	}

	next := state.Clone()
	if next.StateData == nil {
		next.StateData = make(map[models.DataKey]string)
	}
	effects := st.handle(m, &next, text)
	if next.FlowType != state.FlowType && state.FlowType != models.FlowTypeNone {
		// flow is write-once
		return state, nil, fmt.Errorf("%w: flow changed from %q to %q", ErrInvalidState, state.FlowType, next.FlowType)
	}
	next.UpdatedAt = now
	return next, effects, nil
}

// IsType1 reports whether a free-text diabetes type names Type 1.
func IsType1(diabetesType string) bool {
	return strings.Contains(util.NormalizeToken(diabetesType), "type1")
}

func (m *Machine) choose(s *models.FlowState, text string) []Effect {
	t := util.NormalizeToken(text)
	switch {
	case t == "1" || strings.Contains(t, "diabetes"):
		s.FlowType, s.CurrentState = models.FlowTypePatient, models.StatePatientCollect
		return []Effect{send(MsgDiabetesIntro)}
	case t == "2" || strings.Contains(t, "other"):
		s.FlowType, s.CurrentState = models.FlowTypeOther, models.StateOtherCollect
		return []Effect{send(MsgOtherIntro)}
	case t == "3" || strings.Contains(t, "professional") || strings.Contains(t, "certification"):
		s.FlowType, s.CurrentState = models.FlowTypeStudent, models.StateStudentCollect
		return []Effect{send(MsgStudentIntro)}
	}
	return []Effect{send(MsgChooseRetry)}
}

// collect merges bulk input into s. It reports false when too few lines were sent.
func collect(s *models.FlowState, text string, fields []models.DataKey) bool {
	parsed, ok := util.ParseStructuredLines(text, fields)
	if !ok {
		return false
	}
	for k, v := range parsed {
		s.StateData[k] = v
	}
	return true
}

func (m *Machine) patientCollect(s *models.FlowState, text string) []Effect {
	if !collect(s, text, PatientFields) {
		return []Effect{send(MsgPatientCollectRetry)}
	}
	s.CurrentState = models.StatePatientConfirm
	return []Effect{send(confirmPatient(s.StateData))}
}

func (m *Machine) patientConfirm(s *models.FlowState, text string) []Effect {
	switch util.ParseAffirmation(text) {
	case util.AffirmationNo:
		s.CurrentState = models.StatePatientCollect
		return []Effect{send(MsgPatientResend)}
	case util.AffirmationYes:
		s.CurrentState = models.StatePatientType
		return []Effect{send(MsgPatientType)}
	}
	return []Effect{send(MsgConfirmRetry)}
}

func (m *Machine) patientType(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyDiabetesType] = text
	if IsType1(text) {
		// t1_intro is informational and never waits for input.
		s.CurrentState = models.StateType1Answers
		return []Effect{send(MsgType1Intro)}
	}
	s.CurrentState = models.StatePatientYears
	return []Effect{send(MsgPatientYears)}
}

func (m *Machine) patientYears(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyDiabetesYears] = text
	s.CurrentState = models.StatePatientValues
	return []Effect{send(MsgPatientValues)}
}

func (m *Machine) patientValues(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyLatestFastingPP] = text
	s.CurrentState = models.StatePatientGoal
	return []Effect{send(MsgPatientGoal)}
}

func (m *Machine) patientGoal(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyMainGoal] = text
	return []Effect{send(m.links.patientClosing()), complete}
}

func (m *Machine) type1Answers(s *models.FlowState, text string) []Effect {
	if !collect(s, text, Type1Fields) {
		return []Effect{send(MsgType1AnswersRetry)}
	}
	s.CurrentState = models.StateType1Step
	return []Effect{send(MsgType1Step)}
}

func (m *Machine) type1Step(s *models.FlowState, text string) []Effect {
	switch util.ParseAffirmation(text) {
	case util.AffirmationNo:
		return []Effect{complete}
	case util.AffirmationYes:
		s.CurrentState = models.StateType1Focus
		return []Effect{send(MsgType1Focus)}
	}
	return []Effect{send(MsgType1StepRetry)}
}

func (m *Machine) type1Focus(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyMainGoal] = text
	return []Effect{send(m.links.type1Closing()), complete}
}

// otherCollect completes straight away; this flow has no confirmation step.
func (m *Machine) otherCollect(s *models.FlowState, text string) []Effect {
	if !collect(s, text, OtherFields) {
		return []Effect{send(MsgOtherCollectRetry)}
	}
	return []Effect{send(m.links.otherClosing()), complete}
}

func (m *Machine) studentCollect(s *models.FlowState, text string) []Effect {
	if !collect(s, text, StudentFields) {
		return []Effect{send(MsgStudentCollectRetry)}
	}
	s.CurrentState = models.StateStudentConfirm
	return []Effect{send(confirmStudent(s.StateData))}
}

func (m *Machine) studentConfirm(s *models.FlowState, text string) []Effect {
	switch util.ParseAffirmation(text) {
	case util.AffirmationNo:
		s.CurrentState = models.StateStudentCollect
		return []Effect{send(MsgStudentResend)}
	case util.AffirmationYes:
		s.CurrentState = models.StateStudentBest
		return []Effect{send(MsgStudentBest)}
	}
	return []Effect{send(MsgConfirmRetry)}
}

func (m *Machine) studentBest(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyBestDescribes] = text
	s.CurrentState = models.StateStudentGoal
	return []Effect{send(MsgStudentGoal)}
}

func (m *Machine) studentGoal(s *models.FlowState, text string) []Effect {
	s.StateData[models.DataKeyTrainingGoal] = text
	s.CurrentState = models.StateStudentWebinar
	return []Effect{send(MsgStudentWebinar)}
}

// studentWebinar only completes on an explicit yes. "No" re-prompts like an
// unrecognized answer.
func (m *Machine) studentWebinar(s *models.FlowState, text string) []Effect {
	if util.ParseAffirmation(text) != util.AffirmationYes {
		return []Effect{send(MsgStudentWebinarRetry)}
	}
	s.StateData[models.DataKeyWebinarInterest] = "Yes"
	return []Effect{send(m.links.webinarClosing()), complete}
}
