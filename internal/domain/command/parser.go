// Package command turns a chat line into the typed arguments of a command
// definition. Everything here is pure: no I/O, no clocks, no shared state.
package command

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// Parse binds the tokens after the trigger to def's arguments by position.
// gameServerID is only carried into errors.
func Parse(raw string, def model.CommandDefinition, gameServerID string) (model.ParsedCommand, error) {
	tokens, err := tokenize(strings.TrimSpace(raw))
	if err != nil {
		return model.ParsedCommand{}, fmt.Errorf("game server %s: %w", gameServerID, err)
	}
	if len(tokens) == 0 {
		return model.ParsedCommand{}, ErrEmptyCommand
	}

	trigger := stripPrefix(tokens[0])
	if def.Trigger != "" && !strings.EqualFold(trigger, def.Trigger) {
		return model.ParsedCommand{}, fmt.Errorf("%w: got %q, want %q", ErrTriggerMismatch, trigger, def.Trigger)
	}

	args := sortedArguments(def.Arguments)
	values := tokens[1:]
	parsed := make(map[string]any, len(args))

	for i, arg := range args {
		var literal string
		switch {
		case i < len(values):
			literal = values[i]
		case arg.DefaultValue != nil:
			literal = *arg.DefaultValue
		default:
			return model.ParsedCommand{}, &ArgumentError{
				Argument:     arg.Name,
				Type:         arg.Type,
				GameServerID: gameServerID,
				kind:         ErrMissingArgument,
			}
		}

		v, err := coerce(arg, literal, gameServerID)
		if err != nil {
			return model.ParsedCommand{}, err
		}
		parsed[arg.Name] = v
	}

	// extra tokens beyond the defined arguments are ignored
	return model.ParsedCommand{Command: trigger, Arguments: parsed}, nil
}

func sortedArguments(in []model.CommandArgument) []model.CommandArgument {
	out := make([]model.CommandArgument, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func coerce(arg model.CommandArgument, literal, gameServerID string) (any, error) {
	invalid := func() error {
		return &ArgumentError{
			Argument:     arg.Name,
			Type:         arg.Type,
			Value:        literal,
			GameServerID: gameServerID,
			kind:         ErrInvalidArgument,
		}
	}

	switch arg.Type {
	case model.ArgString, "":
		return literal, nil
	case model.ArgBoolean:
		switch literal {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, invalid()
	case model.ArgNumber:
		n, err := strconv.ParseFloat(literal, 64)
		if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, invalid()
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %q for argument %q", ErrUnknownArgumentType, arg.Type, arg.Name)
	}
}
