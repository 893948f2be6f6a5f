package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/novelguild/pkg/storage"
)

// storageError maps a blob store failure on target to a coded error. A
// missing key is NotFound for every operation except writes.
func storageError(op, target string, err error) error {
	if op != "write" && errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, fmt.Sprintf("%s not found", target), err)
	}
	return NewError(Internal, "server error", fmt.Errorf("%s %s: %w", op, target, err))
}

func WrapStorageReadError(target string, err error) error {
	return storageError("read", target, err)
}

func WrapStorageWriteError(target string, err error) error {
	return storageError("write", target, err)
}

func WrapStorageDeleteError(target string, err error) error {
	return storageError("delete", target, err)
}
