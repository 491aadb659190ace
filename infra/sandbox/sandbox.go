// Package sandbox is the boundary between the executor and wherever user code
// actually runs.
package sandbox

import (
	"context"
	"errors"

	"github.com/gettakaro/takaro-worker/internal/domain/model"
)

// ErrUnavailable means the runtime could not be reached at all. The job did
// not run and may be retried.
var ErrUnavailable = errors.New("sandbox unavailable")

// Request is everything one run needs. Data is exposed to the code as the
// `data` global, with token and url merged in.
type Request struct {
	Code   string
	Data   map[string]any
	Token  string
	EnvURL string
}

// Sandbox runs one unit of user code. A run that threw or exited non-zero is
// a result with Success false, not an error. Errors are reserved for
// ErrUnavailable and for ctx expiry.
type Sandbox interface {
	Run(ctx context.Context, req Request) (model.ExecutionResult, error)
}

// Input merges the trigger data with the credentials the code uses to call
// back into the API.
func (r Request) Input() map[string]any {
	in := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		in[k] = v
	}
	in["token"] = r.Token
	in["url"] = r.EnvURL
	return in
}
