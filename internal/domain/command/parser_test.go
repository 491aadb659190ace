package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

func ptr(s string) *string { return &s }

func setteleDefinition() model.CommandDefinition {
	return model.CommandDefinition{
		Trigger: "settele",
		Arguments: []model.CommandArgument{
			// intentionally out of order: binding must follow Position
			{Name: "number", Position: 2, Type: model.ArgNumber, DefaultValue: ptr("42")},
			{Name: "name", Position: 0, Type: model.ArgString, HelpText: "Name of the teleport"},
			{Name: "public", Position: 1, Type: model.ArgBoolean, DefaultValue: ptr("false")},
		},
	}
}

func TestParse_QuotedArgument(t *testing.T) {
	got, err := Parse(`/settele "my base" true`, setteleDefinition(), "gs-1")
	require.NoError(t, err)

	assert.Equal(t, "settele", got.Command)
	assert.Equal(t, "my base", got.Arguments["name"])
	assert.Equal(t, true, got.Arguments["public"])
	assert.Equal(t, float64(42), got.Arguments["number"])
}

func TestParse_Defaults(t *testing.T) {
	got, err := Parse("/settele test", setteleDefinition(), "gs-1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"name":   "test",
		"public": false,
		"number": float64(42),
	}, got.Arguments)
}

func TestParse_TypedRejection(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		argument string
	}{
		{"boolean given a number", "/settele test 42", "public"},
		{"number given a word", "/settele test true foobar", "number"},
		{"boolean is case sensitive", "/settele test TRUE", "public"},
		{"infinite number", "/settele test true Inf", "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, setteleDefinition(), "gs-1")
			require.Error(t, err)

			var argErr *ArgumentError
			require.True(t, errors.As(err, &argErr))
			assert.Equal(t, tt.argument, argErr.Argument)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Contains(t, err.Error(), tt.argument)
		})
	}
}

func TestParse_MissingRequired(t *testing.T) {
	_, err := Parse("/settele", setteleDefinition(), "gs-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingArgument)
	assert.Contains(t, err.Error(), "name")
}

func TestParse_ExtraTokensIgnored(t *testing.T) {
	got, err := Parse("/settele home true 7 and then some", setteleDefinition(), "gs-1")
	require.NoError(t, err)
	assert.Len(t, got.Arguments, 3)
	assert.Equal(t, float64(7), got.Arguments["number"])
}

func TestParse_UnmatchedQuote(t *testing.T) {
	_, err := Parse(`/settele "my base true`, setteleDefinition(), "gs-1")
	assert.ErrorIs(t, err, ErrUnmatchedQuote)
}

func TestParse_TriggerMismatch(t *testing.T) {
	_, err := Parse("/tp home", setteleDefinition(), "gs-1")
	assert.ErrorIs(t, err, ErrTriggerMismatch)
}

func TestParse_Pure(t *testing.T) {
	def := setteleDefinition()
	first, err := Parse(`/settele "my base" true 3`, def, "gs-1")
	require.NoError(t, err)
	second, err := Parse(`/settele "my base" true 3`, def, "gs-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// the definition is left untouched
	assert.Equal(t, setteleDefinition(), def)
}

func TestTokenize(t *testing.T) {
	tokens, err := tokenize(`!give  "big sword"  "" 3`)
	require.NoError(t, err)
	assert.Equal(t, []string{"!give", "big sword", "", "3"}, tokens)
}
