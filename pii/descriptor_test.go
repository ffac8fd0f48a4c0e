package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	Email string
	Name  string
}

func TestRegister_RoundTripsDescriptor(t *testing.T) {
	Register[testUser](
		FieldRule{FieldPath: "Email", PIIType: TypeEmail, Strategy: StrategyMask},
		FieldRule{FieldPath: "Name", PIIType: TypeName, Strategy: StrategyHash},
	)

	d, ok := DescriptorFor(testUser{})
	require.True(t, ok)
	assert.Len(t, d.Rules, 2)

	rule, ok := d.RuleFor("Email")
	require.True(t, ok)
	assert.Equal(t, StrategyMask, rule.Strategy)
	assert.Equal(t, TypeEmail, rule.PIIType)

	_, ok = d.RuleFor("DoesNotExist")
	assert.False(t, ok)
}

func TestDescriptorFor_UnregisteredTypeNotOK(t *testing.T) {
	type unregistered struct{}
	_, ok := DescriptorFor(unregistered{})
	assert.False(t, ok)
}

func TestMustDescriptorFor_PanicsWhenUnregistered(t *testing.T) {
	type alsoUnregistered struct{}
	assert.Panics(t, func() {
		MustDescriptorFor(alsoUnregistered{})
	})
}
