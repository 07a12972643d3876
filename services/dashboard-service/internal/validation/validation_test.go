package validation

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

type item struct {
	ID    string `json:"id" validate:"required"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

type doc struct {
	Name  string `json:"name" validate:"required,max=5"`
	Items []item `json:"items" validate:"unique=ID,dive"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(doc{Name: "ok", Items: []item{{ID: "a"}, {ID: "b", Color: "#fff"}}}))

	cases := map[string]struct {
		in  doc
		msg string
	}{
		"required": {doc{}, "name is required"},
		"max":      {doc{Name: "toolong"}, "name must be at most 5"},
		"unique":   {doc{Name: "x", Items: []item{{ID: "a"}, {ID: "a"}}}, "items must not contain duplicates"},
		"nested":   {doc{Name: "x", Items: []item{{ID: "a", Color: "red"}}}, "items[0].color must be a hex color"},
	}
	for name, tc := range cases {
		err := Struct(tc.in)
		require.Error(t, err, name)
		e := apperr.As(err)
		require.Equal(t, http.StatusBadRequest, e.Status, name)
		require.Equal(t, tc.msg, e.Message, name)
	}
}

func TestVar(t *testing.T) {
	require.NoError(t, Var("email", "a@b.co", "email"))
	err := Var("email", "nope", "email")
	require.Equal(t, "email must be an email address", apperr.As(err).Message)
}
