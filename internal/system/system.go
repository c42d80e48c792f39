// Package system samples host load for the health endpoint.
package system

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Stats is a point-in-time view of the host running the engine. A busy host
// is the usual reason ingests start blowing their budget.
type Stats struct {
	CPUUsagePercent    float64 `json:"cpuUsagePercent"`
	MemoryUsagePercent float64 `json:"memoryUsagePercent"`
	MemoryUsedBytes    uint64  `json:"memoryUsedBytes"`
	MemoryTotalBytes   uint64  `json:"memoryTotalBytes"`
	LoadAvg1m          float64 `json:"loadAvg1m"`
	LoadAvg5m          float64 `json:"loadAvg5m"`
	LoadAvg15m         float64 `json:"loadAvg15m"`
}

// Collect never fails; unreadable counters stay zero.
func Collect(ctx context.Context) *Stats {
	s := &Stats{}

	// CPU usage since the previous call
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuPercent) > 0 {
		s.CPUUsagePercent = cpuPercent[0]
	}

	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		s.MemoryUsagePercent = memStats.UsedPercent
		s.MemoryUsedBytes = memStats.Used
		s.MemoryTotalBytes = memStats.Total
	}

	// Load average is unsupported on some platforms
	loadStats, err := load.AvgWithContext(ctx)
	if err == nil {
		s.LoadAvg1m = loadStats.Load1
		s.LoadAvg5m = loadStats.Load5
		s.LoadAvg15m = loadStats.Load15
	}

	return s
}
