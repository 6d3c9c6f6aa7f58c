package engine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/engine/rotation"
)

func TestRegistry_LoadUnknownTitle(t *testing.T) {
	r := engine.NewRegistry()
	_, err := r.Load("Nope", nil, nil)
	assert.True(t, errors.Is(err, engine.ErrUnknownTitle))
	assert.False(t, r.Has("Nope"))
}

func TestRegistry_LoadReplaysHistory(t *testing.T) {
	r := engine.NewRegistry()
	rotation.Register(r)

	assert.Equal(t, []string{rotation.Title}, r.Titles())

	round, err := r.InitialRound(rotation.Title)
	require.NoError(t, err)
	assert.Equal(t, rotation.RoundPlay, round)

	st, err := r.Load(rotation.Title, []string{"A", "B"}, []engine.Action{
		{"type": "pass", "entity": "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActionCount())
	assert.Equal(t, []string{"B"}, st.ActivePlayers())
}

func TestReplay_WrapsRuleViolation(t *testing.T) {
	_, err := rotation.New([]string{"A", "B"}, []engine.Action{{"type": "pass", "entity": "B"}})
	require.Error(t, err)
	assert.True(t, engine.IsRuleViolation(err))
}

func TestAction_Accessors(t *testing.T) {
	a := engine.Action{"id": float64(3), "type": "message", "message": "hi", "meta": map[string]any{}}
	assert.Equal(t, 3, a.ID())
	assert.Equal(t, "message", a.Type())
	assert.Equal(t, "hi", a.Message())

	_, ok := engine.Action{"id": 2.5}.Int("id")
	assert.False(t, ok)

	stripped := a.Without("meta")
	assert.NotContains(t, stripped, "meta")
	assert.Contains(t, a, "meta")
}
