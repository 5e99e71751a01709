package models

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepOrder(t *testing.T) {
	expected := []RegistrationStep{
		StepNotStarted,
		StepAwaitingName,
		StepAwaitingPhone,
		StepAwaitingTrack,
		StepAwaitingPaymentMethod,
		StepAwaitingScreenshot,
		StepCompleted,
	}

	step := StepNotStarted
	for i, want := range expected {
		require.Equal(t, want, step, "position %d", i)
		step = step.Next()
	}
	assert.Equal(t, StepCompleted, step, "terminal step stays terminal")
}

func TestCanAdvanceTo(t *testing.T) {
	assert.True(t, StepNotStarted.CanAdvanceTo(StepAwaitingName))
	assert.True(t, StepAwaitingScreenshot.CanAdvanceTo(StepCompleted))

	assert.False(t, StepNotStarted.CanAdvanceTo(StepAwaitingPhone), "no skipping")
	assert.False(t, StepAwaitingPhone.CanAdvanceTo(StepAwaitingName), "no going back")
	assert.False(t, StepAwaitingName.CanAdvanceTo(StepAwaitingName), "no self-transition")
	assert.False(t, StepCompleted.CanAdvanceTo(StepCompleted))
	assert.False(t, RegistrationStep("bogus").CanAdvanceTo(StepAwaitingName))
	assert.False(t, StepNotStarted.CanAdvanceTo(RegistrationStep("bogus")))
}

func TestInProgress(t *testing.T) {
	assert.False(t, StepNotStarted.InProgress())
	assert.False(t, StepCompleted.InProgress())
	assert.True(t, StepAwaitingName.InProgress())
	assert.True(t, StepAwaitingScreenshot.InProgress())
}

func TestForwardOnlyProgression(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	steps := make([]interface{}, 0, len(stepOrder))
	for _, s := range stepOrder {
		steps = append(steps, s)
	}

	properties.Property("advancing never skips and never goes backwards", prop.ForAll(
		func(from, to RegistrationStep) bool {
			if !from.CanAdvanceTo(to) {
				return true
			}
			return stepIndex[to] == stepIndex[from]+1
		},
		gen.OneConstOf(steps...),
		gen.OneConstOf(steps...),
	))

	properties.Property("Next always lands on a valid step", prop.ForAll(
		func(from RegistrationStep) bool {
			return from.Next().Valid()
		},
		gen.OneConstOf(steps...),
	))

	properties.TestingRun(t)
}
