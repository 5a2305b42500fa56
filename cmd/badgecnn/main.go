// Command badgecnn exports a trained BadgeCNN checkpoint for the
// visualization client and checks what it wrote.
package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

var version = "v0.1.0-dev"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitMismatch = 2
)

// errMismatch marks a completed verification that found problems.
var errMismatch = errors.New("verification failed")

func main() {
	defer klog.Flush()
	root := newRootCmd(afero.NewOsFs(), os.Stdout, os.Stderr)
	os.Exit(exitCode(root.Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errMismatch):
		return exitMismatch
	default:
		return exitFailure
	}
}
