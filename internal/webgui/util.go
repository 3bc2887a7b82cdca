package webgui

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mapleglade/nxfuse/internal/projection"
)

func cacheHitRatio(m *projection.Metrics) string {
	hits := m.TotalContentCacheHits.Load()
	total := hits + m.TotalContentCacheMisses.Load()

	if total == 0 {
		return "n/a"
	}

	return fmt.Sprintf("%.1f%%", float64(hits)/float64(total)*100) //nolint:mnd
}

func totalBytesRead(m *projection.Metrics) string {
	bytes := m.TotalBytesRead.Load()

	if bytes < 0 {
		return humanize.IBytes(0)
	}

	return humanize.IBytes(uint64(bytes))
}

func enabledOrDisabled(v bool) string {
	if v {
		return "Enabled"
	}

	return "Disabled"
}
