//go:build unix

package orchestrator

import (
	"os"
	"syscall"
)

var syscallSIGTERM = syscall.SIGTERM

func currentEnv() []string { return os.Environ() }
