package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/repocheck/pkg/errors"
)

// exit is overridden in tests.
var exit = os.Exit

// HandleFatalError prints err and exits with status 1. Friendly errors are
// printed as is. Other errors are printed with their context, and the root
// cause is logged at debug level.
func HandleFatalError(err error) {
	if friendly, ok := errors.GetFriendlyError(err); ok {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		log.WithField("cause", errors.RootCause(err)).Debug("Fatal error")
		log.Error(err)
	}
	exit(1)
}

// HandlePanic recovers from a panic, logs the stack trace, and exits with
// status 1. It must be deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Error("Unexpected panic")
		fmt.Fprintf(os.Stderr, "repocheck crashed: %v\n", r)
		exit(1)
	}
}
