package command

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

func killProcessTree(pid int) error {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return errors.Wrapf(err, "failed to find process %d", pid)
	}
	// children go first so that none of them is reparented before being killed
	children, _ := proc.Children()
	for _, child := range children {
		_ = killProcessTree(int(child.Pid))
	}
	err = proc.Kill()
	if err != nil {
		if running, runErr := proc.IsRunning(); runErr == nil && !running {
			return nil
		}
		return errors.Wrapf(err, "failed to kill process %d", pid)
	}
	return nil
}
