package models

// RegistrationStep is the wizard state. Steps only advance forward through
// the order below, or reset fully to StepNotStarted.
type RegistrationStep string

const (
	StepNotStarted            RegistrationStep = "not_started"
	StepAwaitingName          RegistrationStep = "awaiting_name"
	StepAwaitingPhone         RegistrationStep = "awaiting_phone"
	StepAwaitingTrack         RegistrationStep = "awaiting_track"
	StepAwaitingPaymentMethod RegistrationStep = "awaiting_payment_method"
	StepAwaitingScreenshot    RegistrationStep = "awaiting_screenshot"
	StepCompleted             RegistrationStep = "completed"
)

// stepOrder is the canonical wizard sequence.
var stepOrder = []RegistrationStep{
	StepNotStarted,
	StepAwaitingName,
	StepAwaitingPhone,
	StepAwaitingTrack,
	StepAwaitingPaymentMethod,
	StepAwaitingScreenshot,
	StepCompleted,
}

// stepIndex maps each step to its position in stepOrder.
var stepIndex = func() map[RegistrationStep]int {
	m := make(map[RegistrationStep]int, len(stepOrder))
	for i, s := range stepOrder {
		m[s] = i
	}
	return m
}()

func (s RegistrationStep) Valid() bool {
	_, ok := stepIndex[s]
	return ok
}

// Next returns the step after s in the wizard order. The terminal step
// returns itself.
func (s RegistrationStep) Next() RegistrationStep {
	i, ok := stepIndex[s]
	if !ok || i == len(stepOrder)-1 {
		return StepCompleted
	}
	return stepOrder[i+1]
}

// CanAdvanceTo reports whether moving from s to next is a legal forward
// transition: exactly one position ahead, never a skip, never backwards.
func (s RegistrationStep) CanAdvanceTo(next RegistrationStep) bool {
	from, ok := stepIndex[s]
	if !ok {
		return false
	}
	to, ok := stepIndex[next]
	if !ok {
		return false
	}
	return to == from+1
}

// InProgress reports whether the wizard has started but not finished.
func (s RegistrationStep) InProgress() bool {
	return s != StepNotStarted && s != StepCompleted
}
