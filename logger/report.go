package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed   int64
	errorsEngine int64
	warnsFeed    int64
	warnsEngine  int64
	feedMessages int64
	decodeErrors int64
	reconnects   int64
	foldsApplied int64
	foldsSkipped int64
	channels     sync.Map // map[string]*channelStat
)

// Counters is a point-in-time copy of the pipeline counters.
type Counters struct {
	FeedMessages int64
	DecodeErrors int64
	Reconnects   int64
	FoldsApplied int64
	FoldsSkipped int64
	WarnsFeed    int64
	WarnsEngine  int64
	ErrorsFeed   int64
	ErrorsEngine int64
}

func recordWarn(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&warnsFeed, 1)
	} else if strings.Contains(component, "engine") || strings.Contains(component, "session") {
		atomic.AddInt64(&warnsEngine, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "feed") {
		atomic.AddInt64(&errorsFeed, 1)
	} else if strings.Contains(component, "engine") || strings.Contains(component, "session") {
		atomic.AddInt64(&errorsEngine, 1)
	}
}

func IncrementFeedMessage(size int) {
	atomic.AddInt64(&feedMessages, 1)
	recordChannel("feed_ws", size)
}

func IncrementDecodeError() {
	atomic.AddInt64(&decodeErrors, 1)
}

func IncrementReconnect() {
	atomic.AddInt64(&reconnects, 1)
}

func IncrementFold(applied bool) {
	if applied {
		atomic.AddInt64(&foldsApplied, 1)
		return
	}
	atomic.AddInt64(&foldsSkipped, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// Snapshot returns the current counter values.
func Snapshot() Counters {
	return Counters{
		FeedMessages: atomic.LoadInt64(&feedMessages),
		DecodeErrors: atomic.LoadInt64(&decodeErrors),
		Reconnects:   atomic.LoadInt64(&reconnects),
		FoldsApplied: atomic.LoadInt64(&foldsApplied),
		FoldsSkipped: atomic.LoadInt64(&foldsSkipped),
		WarnsFeed:    atomic.LoadInt64(&warnsFeed),
		WarnsEngine:  atomic.LoadInt64(&warnsEngine),
		ErrorsFeed:   atomic.LoadInt64(&errorsFeed),
		ErrorsEngine: atomic.LoadInt64(&errorsEngine),
	}
}

// StartReport begins periodic logging of runtime and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	var memoryMB int64
	if memStats, err := mem.VirtualMemory(); err == nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}

	c := Snapshot()
	log.WithComponent("report").WithFields(Fields{
		"feed_messages": c.FeedMessages,
		"decode_errors": c.DecodeErrors,
		"reconnects":    c.Reconnects,
		"folds_applied": c.FoldsApplied,
		"folds_skipped": c.FoldsSkipped,
		"warns_feed":    c.WarnsFeed,
		"warns_engine":  c.WarnsEngine,
		"errors_feed":   c.ErrorsFeed,
		"errors_engine": c.ErrorsEngine,
		"goroutines":    runtime.NumGoroutine(),
		"cpu_percent":   cpuPct,
		"memory_mb":     memoryMB,
		"channels":      channelData,
	}).Info("runtime report")
}
