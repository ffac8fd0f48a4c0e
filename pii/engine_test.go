package pii

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/curve/pii/kms"
)

type signupEvent struct {
	Email string
	Name  string
	SSN   string
}

func TestEngine_TransformAppliesEachFieldsStrategy(t *testing.T) {
	Register[signupEvent](
		FieldRule{FieldPath: "Email", PIIType: TypeEmail, Strategy: StrategyMask},
		FieldRule{FieldPath: "Name", PIIType: TypeName, Strategy: StrategyHash},
	)

	engine := NewEngine(nil, "fixed-salt")
	ev := &signupEvent{Email: "jane.doe@example.com", Name: "Jane", SSN: "123-45-6789"}

	err := engine.Transform(context.Background(), ev)
	require.NoError(t, err)

	assert.Equal(t, "j***@ex***.com", ev.Email)
	assert.Equal(t, Hash("fixed-salt", "Jane"), ev.Name)
	assert.Equal(t, "123-45-6789", ev.SSN, "field without a rule is left untouched")
}

func TestEngine_TransformEncryptRequiresKeyProvider(t *testing.T) {
	type secretEvent struct {
		Token string
	}
	Register[secretEvent](
		FieldRule{FieldPath: "Token", PIIType: TypeGeneric, Strategy: StrategyEncrypt},
	)

	engine := NewEngine(nil, "")
	ev := &secretEvent{Token: "abc123"}
	err := engine.Transform(context.Background(), ev)
	assert.Error(t, err)
}

func TestEngine_TransformEncryptWithKeyProvider(t *testing.T) {
	type secretEvent struct {
		Token string
	}
	Register[secretEvent](
		FieldRule{FieldPath: "Token", PIIType: TypeGeneric, Strategy: StrategyEncrypt},
	)

	key := make([]byte, 32)
	provider, err := kms.NewStaticProvider(key)
	require.NoError(t, err)

	engine := NewEngine(provider, "")
	ev := &secretEvent{Token: "abc123"}
	err = engine.Transform(context.Background(), ev)
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", ev.Token)
}

func TestEngine_TransformRejectsNonStringField(t *testing.T) {
	type countedEvent struct {
		Count int
	}
	Register[countedEvent](
		FieldRule{FieldPath: "Count", PIIType: TypeGeneric, Strategy: StrategyMask},
	)

	engine := NewEngine(nil, "")
	err := engine.Transform(context.Background(), &countedEvent{Count: 5})
	assert.Error(t, err)
}

func TestEngine_TransformUnregisteredTypeErrors(t *testing.T) {
	type unregisteredThing struct{ Field string }
	engine := NewEngine(nil, "")
	err := engine.Transform(context.Background(), &unregisteredThing{Field: "x"})
	assert.Error(t, err)
}
