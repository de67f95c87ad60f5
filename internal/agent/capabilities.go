package agent

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mstrand/trainfleet/internal/models"
)

// CollectCapabilities probes the local machine for the capabilities record
// sent with registration and discovery replies. Probe failures fall back to
// runtime values rather than failing startup.
func CollectCapabilities() models.Capabilities {
	caps := models.Capabilities{
		CPUCores: runtime.NumCPU(),
		Platform: runtime.GOOS,
		Machine:  runtime.GOARCH,
		Extra: map[string]string{
			"go_version": runtime.Version(),
		},
	}

	if cores, err := cpu.Counts(true); err == nil && cores > 0 {
		caps.CPUCores = cores
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		caps.TotalMemMB = vm.Total / (1024 * 1024)
	}

	if info, err := host.Info(); err == nil {
		if info.Platform != "" {
			caps.Platform = info.Platform
		}
		if info.KernelArch != "" {
			caps.Machine = info.KernelArch
		}
	}

	return caps
}
