package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_EmptyPassesThrough(t *testing.T) {
	assert.Equal(t, "", Hash("salt", ""))
}

func TestHash_DeterministicForFixedSalt(t *testing.T) {
	a := Hash("pepper", "user@example.com")
	b := Hash("pepper", "user@example.com")
	assert.Equal(t, a, b)
}

func TestHash_DifferentSaltsDifferentDigests(t *testing.T) {
	a := Hash("pepper-one", "user@example.com")
	b := Hash("pepper-two", "user@example.com")
	assert.NotEqual(t, a, b)
}

func TestHash_EmptySaltFallsBackToDefault(t *testing.T) {
	withDefault := Hash("", "user@example.com")
	withExplicitDefault := Hash(defaultSalt, "user@example.com")
	assert.Equal(t, withExplicitDefault, withDefault)
}

func TestHash_NotReversible(t *testing.T) {
	got := Hash("pepper", "user@example.com")
	assert.NotContains(t, got, "user@example.com")
}
