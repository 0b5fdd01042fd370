//go:build windows

package collector

import "os/exec"

// killProcessGroupOnCancel keeps the exec default on Windows: the child
// process is killed when the context ends.
func killProcessGroupOnCancel(cmd *exec.Cmd) {}
