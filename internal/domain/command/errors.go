package command

import (
	"errors"
	"fmt"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

var (
	ErrUnmatchedQuote      = errors.New("unmatched quote in command")
	ErrEmptyCommand        = errors.New("empty command")
	ErrTriggerMismatch     = errors.New("command does not match trigger")
	ErrMissingArgument     = errors.New("missing required argument")
	ErrInvalidArgument     = errors.New("invalid argument value")
	ErrUnknownArgumentType = errors.New("unknown argument type")
)

// ArgumentError is a user input error naming the offending argument. Its
// message is safe to show to the player.
type ArgumentError struct {
	Argument     string
	Type         model.ArgumentType
	Value        string
	GameServerID string
	kind         error
}

func (e *ArgumentError) Error() string {
	if e.kind == ErrMissingArgument {
		return fmt.Sprintf("Missing required argument %q.", e.Argument)
	}
	switch e.Type {
	case model.ArgBoolean:
		return fmt.Sprintf("Invalid value for argument %q: expected true or false, got %q.", e.Argument, e.Value)
	case model.ArgNumber:
		return fmt.Sprintf("Invalid value for argument %q: expected a number, got %q.", e.Argument, e.Value)
	default:
		return fmt.Sprintf("Invalid value for argument %q: %q.", e.Argument, e.Value)
	}
}

func (e *ArgumentError) Unwrap() error { return e.kind }

// IsUserError reports errors caused by what the player typed.
func IsUserError(err error) bool {
	var argErr *ArgumentError
	return errors.As(err, &argErr) ||
		errors.Is(err, ErrUnmatchedQuote) ||
		errors.Is(err, ErrEmptyCommand) ||
		errors.Is(err, ErrTriggerMismatch)
}

// PlayerMessage renders a user error for the player who typed the command.
func PlayerMessage(err error) string {
	var argErr *ArgumentError
	switch {
	case errors.As(err, &argErr):
		return argErr.Error()
	case errors.Is(err, ErrUnmatchedQuote):
		return "Your command has an unmatched quote."
	default:
		return "Could not parse your command."
	}
}
