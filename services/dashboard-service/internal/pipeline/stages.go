// Package pipeline mutates the ordered stage list embedded in a business
// config. Every operation returns a new slice with orders renumbered from 0
// and exactly one default stage while any stage remains.
package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

const MaxStages = 50

type Stage struct {
	ID        string `json:"id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=80"`
	Color     string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Order     int    `json:"order"`
	IsDefault bool   `json:"is_default"`
}

// Update holds the optional fields of a stage edit.
type Update struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	IsDefault *bool   `json:"is_default"`
}

func clone(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

func indexOf(stages []Stage, id string) int {
	for i, s := range stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Normalize renumbers orders and repairs the default flag: the first stage
// marked default wins, and the first stage becomes default when none is.
func Normalize(stages []Stage) []Stage {
	out := clone(stages)
	def := -1
	for i := range out {
		out[i].Order = i
		if out[i].IsDefault && def == -1 {
			def = i
		}
		out[i].IsDefault = false
	}
	if len(out) > 0 {
		if def == -1 {
			def = 0
		}
		out[def].IsDefault = true
	}
	return out
}

// Sorted orders stages by their stored order, keeping ties stable.
func Sorted(stages []Stage) []Stage {
	out := clone(stages)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Order < out[j-1].Order; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func Default(stages []Stage) (Stage, bool) {
	for _, s := range stages {
		if s.IsDefault {
			return s, true
		}
	}
	return Stage{}, false
}

func Add(stages []Stage, name, color string) ([]Stage, Stage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Stage{}, apperr.BadRequest("stage name is required")
	}
	if len(stages) >= MaxStages {
		return nil, Stage{}, apperr.Badf("at most %d stages", MaxStages)
	}
	s := Stage{ID: uuid.NewString(), Name: name, Color: strings.TrimSpace(color)}
	out := append(clone(stages), s)
	out = Normalize(out)
	return out, out[len(out)-1], nil
}

func Apply(stages []Stage, id string, u Update) ([]Stage, Stage, error) {
	i := indexOf(stages, id)
	if i < 0 {
		return nil, Stage{}, apperr.NotFound("stage not found")
	}
	out := clone(stages)
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, Stage{}, apperr.BadRequest("stage name is required")
		}
		out[i].Name = name
	}
	if u.Color != nil {
		out[i].Color = strings.TrimSpace(*u.Color)
	}
	if u.IsDefault != nil && *u.IsDefault {
		for j := range out {
			out[j].IsDefault = j == i
		}
	}
	// Clearing the only default is ignored; Normalize keeps one.
	out = Normalize(out)
	return out, out[i], nil
}

// Move places stage id at toIndex, clamped to the list bounds.
func Move(stages []Stage, id string, toIndex int) ([]Stage, error) {
	i := indexOf(stages, id)
	if i < 0 {
		return nil, apperr.NotFound("stage not found")
	}
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(stages)-1 {
		toIndex = len(stages) - 1
	}
	out := clone(stages)
	s := out[i]
	out = append(out[:i], out[i+1:]...)
	out = append(out[:toIndex], append([]Stage{s}, out[toIndex:]...)...)
	return Normalize(out), nil
}

// Delete removes stage id and returns the stage its records should move to:
// reassignTo when given, otherwise the (possibly new) default. target is
// empty when no stage remains.
func Delete(stages []Stage, id, reassignTo string) (out []Stage, target string, err error) {
	i := indexOf(stages, id)
	if i < 0 {
		return nil, "", apperr.NotFound("stage not found")
	}
	if reassignTo == id {
		return nil, "", apperr.BadRequest("cannot reassign records to the deleted stage")
	}
	if reassignTo != "" && indexOf(stages, reassignTo) < 0 {
		return nil, "", apperr.BadRequest("reassign target not found")
	}
	out = clone(stages)
	out = append(out[:i], out[i+1:]...)
	out = Normalize(out)
	if reassignTo != "" {
		return out, reassignTo, nil
	}
	if def, ok := Default(out); ok {
		return out, def.ID, nil
	}
	return out, "", nil
}
