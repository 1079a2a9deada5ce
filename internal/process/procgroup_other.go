//go:build !unix

package process

import "os/exec"

// killProcessGroup keeps the default cancellation, which kills only the
// direct child.
// TODO: assign the child to a Windows job object so helpers die with it.
func killProcessGroup(cmd *exec.Cmd) {}
