//go:build !unix

package ffmpeg

import "os/exec"

// Without process groups the default CommandContext kill applies.
func configureProcess(cmd *exec.Cmd) {}
