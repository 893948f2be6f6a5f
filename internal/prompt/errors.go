package prompt

import (
	"errors"

	"github.com/kazz187/novelguild/pkg/cerr"
)

// ErrLoad is wrapped by every failure to load a required document or module.
var ErrLoad = cerr.NewError(cerr.FailedPrecondition, "prompt load failed", nil)

func loadError(msg string, err error) error {
	return cerr.NewError(cerr.FailedPrecondition, msg, errors.Join(ErrLoad, err))
}
