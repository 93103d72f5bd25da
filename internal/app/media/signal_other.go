//go:build !unix

package media

import (
	"os"

	"github.com/cockroachdb/errors"
)

func suspend(*os.Process) error {
	return errors.New("pause is not supported on this platform")
}

func resume(*os.Process) error {
	return errors.New("resume is not supported on this platform")
}
