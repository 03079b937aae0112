package ops

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// SystemStats contains overall system statistics
type SystemStats struct {
	Version   string
	Commit    string
	Uptime    time.Duration
	StartTime time.Time

	// Runtime stats
	GoVersion       string
	NumGoroutines   int
	MemAllocMB      float64
	MemTotalAllocMB float64
	MemSysMB        float64
	NumGC           uint32
}

// ConnectionStats contains channel lifecycle statistics
type ConnectionStats struct {
	Target     string
	State      string
	StatusText string
}

// StoreStats contains reconciliation store statistics
type StoreStats struct {
	GalleryItems   int
	GalleryTotal   int
	GalleryHasMore bool
	CachedFeeds    int
	ActivePatches  int
	Notifications  int
	UnreadCount    int
	MessageLogSize int
	SeenItems      int
}

// StatsSource supplies live connection and store statistics. The
// client engine implements it; diagnostics stays decoupled from the
// store packages.
type StatsSource interface {
	ConnectionStats() ConnectionStats
	StoreStats() StoreStats
}

// DiagnosticsCollector gathers runtime diagnostics
type DiagnosticsCollector struct {
	version   string
	commit    string
	startTime time.Time
	source    StatsSource
}

// NewDiagnosticsCollector creates a new diagnostics collector
func NewDiagnosticsCollector(version, commit string, source StatsSource) *DiagnosticsCollector {
	return &DiagnosticsCollector{
		version:   version,
		commit:    commit,
		startTime: time.Now(),
		source:    source,
	}
}

// CollectSystemStats gathers system-level statistics
func (d *DiagnosticsCollector) CollectSystemStats() *SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &SystemStats{
		Version:         d.version,
		Commit:          d.commit,
		Uptime:          time.Since(d.startTime),
		StartTime:       d.startTime,
		GoVersion:       runtime.Version(),
		NumGoroutines:   runtime.NumGoroutine(),
		MemAllocMB:      float64(m.Alloc) / 1024 / 1024,
		MemTotalAllocMB: float64(m.TotalAlloc) / 1024 / 1024,
		MemSysMB:        float64(m.Sys) / 1024 / 1024,
		NumGC:           m.NumGC,
	}
}

// Diagnostics bundles everything CollectAll gathers
type Diagnostics struct {
	System     *SystemStats
	Connection ConnectionStats
	Stores     StoreStats
	Collected  time.Time
}

// CollectAll gathers all diagnostics
func (d *DiagnosticsCollector) CollectAll() *Diagnostics {
	diag := &Diagnostics{
		System:    d.CollectSystemStats(),
		Collected: time.Now(),
	}
	if d.source != nil {
		diag.Connection = d.source.ConnectionStats()
		diag.Stores = d.source.StoreStats()
	}
	return diag
}

// FormatAsText renders the diagnostics as a plain text report
func (d *Diagnostics) FormatAsText() string {
	var b strings.Builder

	b.WriteString("=== picrate diagnostics ===\n\n")

	b.WriteString("System:\n")
	fmt.Fprintf(&b, "  Version:    %s (%s)\n", d.System.Version, d.System.Commit)
	fmt.Fprintf(&b, "  Uptime:     %s\n", d.System.Uptime.Round(time.Second))
	fmt.Fprintf(&b, "  Go:         %s\n", d.System.GoVersion)
	fmt.Fprintf(&b, "  Goroutines: %d\n", d.System.NumGoroutines)
	fmt.Fprintf(&b, "  Memory:     %.1f MB alloc, %.1f MB sys, %d GCs\n",
		d.System.MemAllocMB, d.System.MemSysMB, d.System.NumGC)

	b.WriteString("\nConnection:\n")
	fmt.Fprintf(&b, "  Target: %s\n", d.Connection.Target)
	fmt.Fprintf(&b, "  State:  %s (%s)\n", d.Connection.State, d.Connection.StatusText)

	b.WriteString("\nStores:\n")
	fmt.Fprintf(&b, "  Gallery:       %d items loaded of %d (has_more=%v)\n",
		d.Stores.GalleryItems, d.Stores.GalleryTotal, d.Stores.GalleryHasMore)
	fmt.Fprintf(&b, "  Feeds:         %d cached, %d optimistic patches\n",
		d.Stores.CachedFeeds, d.Stores.ActivePatches)
	fmt.Fprintf(&b, "  Notifications: %d total, %d unread\n",
		d.Stores.Notifications, d.Stores.UnreadCount)
	fmt.Fprintf(&b, "  Message log:   %d entries\n", d.Stores.MessageLogSize)
	fmt.Fprintf(&b, "  Seen items:    %d\n", d.Stores.SeenItems)

	return b.String()
}
