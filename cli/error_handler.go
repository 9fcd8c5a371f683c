package cli

import (
	"fmt"
	"os"

	"github.com/grovetools/mesh/errors"
)

// HandleError prints an error once, surfacing the typed code when present,
// and exits non-zero. Call it from main around Execute.
func HandleError(err error) {
	if err == nil {
		return
	}

	if meshErr, isTyped := err.(*errors.MeshError); isTyped {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", meshErr.Code, meshErr.Message)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}
