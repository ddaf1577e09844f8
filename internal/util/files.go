package util

import (
	"errors"
	"io/fs"
	"os"
)

// PathExists reports whether path exists. Errors other than "not exist"
// are returned to the caller.
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
