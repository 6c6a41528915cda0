//go:build !unix

package procstat

import "time"

func cpuTime() (time.Duration, bool) { return 0, false }
