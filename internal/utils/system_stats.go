package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"facegate/internal/core/pipeline"

	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats holds current system and application statistics.
type SystemStats struct {
	NumCPU      int     `json:"num_cpu"`
	GoRoutines  int     `json:"go_routines"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryAlloc uint64  `json:"memory_alloc"`
	MemorySys   uint64  `json:"memory_sys"`

	WorkerCount   int `json:"worker_count"`
	ActiveJobs    int `json:"active_jobs"`
	QueueCapacity int `json:"queue_capacity"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes renders a byte count in human-readable units.
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage measures overall CPU usage, cached for half a second so
// frequent status polls stay cheap.
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("Failed to measure CPU usage: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage
	return usage
}

// GetSystemStats collects current system and worker-pool statistics.
func GetSystemStats(pool *pipeline.WorkerPool) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:      runtime.NumCPU(),
		GoRoutines:  runtime.NumGoroutine(),
		CPUUsage:    GetCPUUsage(),
		MemoryAlloc: memStats.Alloc,
		MemorySys:   memStats.Sys,
		Timestamp:   time.Now(),
	}

	if pool != nil {
		stats.WorkerCount = pool.GetWorkerCount()
		stats.ActiveJobs = pool.ActiveJobCount()
		stats.QueueCapacity = pool.GetQueueCapacity()
	}

	return stats
}
