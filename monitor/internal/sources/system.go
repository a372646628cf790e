package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// SystemSample is one read of OS and process counters.
type SystemSample struct {
	CPU     types.CPUStats
	Memory  types.MemoryStats
	Process types.ProcessStats
}

// System reads host and process counters via gopsutil.
type System struct {
	pid     int32
	started time.Time
	proc    *process.Process
}

// NewSystem returns a System bound to the current process. started is used as
// the process start time when the OS does not report one.
func NewSystem(started time.Time) *System {
	s := &System{pid: int32(os.Getpid()), started: started}
	if p, err := process.NewProcess(s.pid); err == nil {
		s.proc = p
	}
	return s
}

// Sample collects CPU, memory and process stats. Each group is read
// independently; a failed group is left zeroed and reported in the returned
// error while the others are still filled in.
func (s *System) Sample(ctx context.Context) (SystemSample, error) {
	var out SystemSample
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu percent: %w", err))
	} else if len(pct) > 0 {
		out.CPU.Usage = pct[0]
	}
	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load average: %w", err))
	} else {
		out.CPU.LoadAverage = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}
	out.CPU.Cores = runtime.NumCPU()

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("virtual memory: %w", err))
	} else {
		out.Memory = types.MemoryStats{
			Total:        vm.Total,
			Used:         vm.Used,
			Free:         vm.Available,
			UsagePercent: vm.UsedPercent,
		}
	}

	out.Process = s.processStats(ctx, &errs)

	if len(errs) > 0 {
		return out, fmt.Errorf("system sample: %w", errors.Join(errs...))
	}
	return out, nil
}

func (s *System) processStats(ctx context.Context, errs *[]error) types.ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	ps := types.ProcessStats{
		PID:        int(s.pid),
		Uptime:     time.Since(s.started).Seconds(),
		Goroutines: runtime.NumGoroutine(),
		Memory: types.ProcessMemoryStats{
			HeapAlloc: ms.HeapAlloc,
			HeapSys:   ms.HeapSys,
		},
	}
	if s.proc == nil {
		return ps
	}

	if created, err := s.proc.CreateTimeWithContext(ctx); err == nil && created > 0 {
		ps.Uptime = time.Since(time.UnixMilli(created)).Seconds()
	}
	if mi, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
		*errs = append(*errs, fmt.Errorf("process memory: %w", err))
	} else {
		ps.Memory.RSS = mi.RSS
		ps.Memory.VMS = mi.VMS
	}
	return ps
}
