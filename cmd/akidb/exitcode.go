package main

import (
	"errors"
	"fmt"
	"os"

	"storage-engine/internal/common"
)

// exit codes: 0 ok, 2 validation,
// 3 not found, 4 conflict, 5 storage error, 1 internal (the default
// for anything not mapped to a more specific kind, including plain
// cobra usage errors).
const (
	exitOK         = 0
	exitInternal   = 1
	exitValidation = 2
	exitNotFound   = 3
	exitConflict   = 4
	exitStorage    = 5
)

// fail prints err to stderr and exits with the code its ErrorKind maps
// to, or exitInternal if err does not carry a StorageError kind.
func fail(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "akidb: error:", err)

	var se *common.StorageError
	if errors.As(err, &se) {
		switch se.Kind {
		case common.KindValidation:
			os.Exit(exitValidation)
		case common.KindNotFound:
			os.Exit(exitNotFound)
		case common.KindConflict:
			os.Exit(exitConflict)
		case common.KindStorage:
			os.Exit(exitStorage)
		}
	}
	os.Exit(exitInternal)
}
