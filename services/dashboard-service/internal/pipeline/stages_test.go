package pipeline

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

func names(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name
	}
	return out
}

func requireWellFormed(t *testing.T, stages []Stage) {
	t.Helper()
	defaults := 0
	for i, s := range stages {
		require.Equal(t, i, s.Order)
		if s.IsDefault {
			defaults++
		}
	}
	if len(stages) > 0 {
		require.Equal(t, 1, defaults)
	}
}

func seed(t *testing.T, ns ...string) []Stage {
	t.Helper()
	var stages []Stage
	for _, n := range ns {
		var err error
		stages, _, err = Add(stages, n, "#336699")
		require.NoError(t, err)
	}
	return stages
}

func TestAddFirstBecomesDefault(t *testing.T) {
	stages, s, err := Add(nil, " Lead ", "")
	require.NoError(t, err)
	require.Equal(t, "Lead", s.Name)
	require.True(t, s.IsDefault)
	require.NotEmpty(t, s.ID)

	stages, s, err = Add(stages, "Won", "")
	require.NoError(t, err)
	require.False(t, s.IsDefault)
	require.Equal(t, 1, s.Order)
	requireWellFormed(t, stages)
}

func TestAddRejectsBlankName(t *testing.T) {
	_, _, err := Add(nil, "  ", "")
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestMove(t *testing.T) {
	stages := seed(t, "a", "b", "c", "d")

	out, err := Move(stages, stages[0].ID, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a", "d"}, names(out))
	requireWellFormed(t, out)
	// The default follows the stage, not the position.
	def, _ := Default(out)
	require.Equal(t, "a", def.Name)

	out, err = Move(stages, stages[1].ID, 99)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c", "d", "b"}, names(out))

	out, err = Move(stages, stages[3].ID, -5)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "a", "b", "c"}, names(out))

	// Input is not mutated.
	require.Equal(t, []string{"a", "b", "c", "d"}, names(stages))

	_, err = Move(stages, "missing", 0)
	require.Equal(t, http.StatusNotFound, apperr.StatusOf(err))
}

func TestDeleteDefaultPromotesNewFirst(t *testing.T) {
	stages := seed(t, "a", "b", "c")

	out, target, err := Delete(stages, stages[0].ID, "")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, names(out))
	require.True(t, out[0].IsDefault)
	require.Equal(t, stages[1].ID, target)
	requireWellFormed(t, out)
}

func TestDeleteWithReassign(t *testing.T) {
	stages := seed(t, "a", "b", "c")

	out, target, err := Delete(stages, stages[1].ID, stages[2].ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, names(out))
	require.Equal(t, stages[2].ID, target)

	_, _, err = Delete(stages, stages[1].ID, stages[1].ID)
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
	_, _, err = Delete(stages, stages[1].ID, "nope")
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestDeleteLastStage(t *testing.T) {
	stages := seed(t, "only")
	out, target, err := Delete(stages, stages[0].ID, "")
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, target)
}

func TestApplyUpdate(t *testing.T) {
	stages := seed(t, "a", "b")
	name := "Booked"
	yes := true

	out, s, err := Apply(stages, stages[1].ID, Update{Name: &name, IsDefault: &yes})
	require.NoError(t, err)
	require.Equal(t, "Booked", s.Name)
	require.True(t, s.IsDefault)
	require.False(t, out[0].IsDefault)
	requireWellFormed(t, out)

	no := false
	out, _, err = Apply(out, stages[1].ID, Update{IsDefault: &no})
	require.NoError(t, err)
	requireWellFormed(t, out)

	blank := " "
	_, _, err = Apply(stages, stages[0].ID, Update{Name: &blank})
	require.Equal(t, http.StatusBadRequest, apperr.StatusOf(err))
}

func TestNormalizeAndSorted(t *testing.T) {
	in := []Stage{
		{ID: "x", Order: 5, IsDefault: true},
		{ID: "y", Order: 1, IsDefault: true},
		{ID: "z", Order: 3},
	}
	out := Normalize(Sorted(in))
	require.Equal(t, "y", out[0].ID)
	require.Equal(t, "z", out[1].ID)
	require.Equal(t, "x", out[2].ID)
	require.True(t, out[0].IsDefault)
	require.False(t, out[2].IsDefault)
	requireWellFormed(t, out)
}
