// Package runtimex handles errors that the program cannot recover from.
package runtimex

import (
	"fmt"
	"os"
)

// PanicOnError panics with an error wrapping err when err is not nil.
// Use it for failures that mean we have a bug.
func PanicOnError(err error, message string) {
	if err != nil {
		panic(fmt.Errorf("%s: %w", message, err))
	}
}

// exit is os.Exit except in tests.
var exit = os.Exit

// Must prints message and err on the standard error and exits with
// status 1 when err is not nil. Use it in main for failures caused
// by the environment, such as a file we cannot create.
func Must(err error, message string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "netanalyzer: %s: %s\n", message, err.Error())
		exit(1)
	}
}
