// Package metrics collects run statistics with atomic counters.
package metrics

import (
	"sync/atomic"

	"github.com/dupsync/dupsync/pkg/plog"
)

// Metrics is the counter surface shared by the scan, hash and sync stages.
type Metrics interface {
	AddFilesScanned(n int64)
	AddFilesHashed(n int64)
	AddBytesHashed(n int64)
	AddCacheHits(n int64)
	AddFilesCopied(n int64)
	AddBytesCopied(n int64)
	AddFilesUpToDate(n int64)
	AddFilesDeleted(n int64)
	AddDirsCreated(n int64)
	AddErrors(n int64)
	Log()
}

// RunMetrics is the concrete implementation backed by atomic counters.
type RunMetrics struct {
	FilesScanned  atomic.Int64
	FilesHashed   atomic.Int64
	BytesHashed   atomic.Int64
	CacheHits     atomic.Int64
	FilesCopied   atomic.Int64
	BytesCopied   atomic.Int64
	FilesUpToDate atomic.Int64
	FilesDeleted  atomic.Int64
	DirsCreated   atomic.Int64
	Errors        atomic.Int64
}

func (m *RunMetrics) AddFilesScanned(n int64)  { m.FilesScanned.Add(n) }
func (m *RunMetrics) AddFilesHashed(n int64)   { m.FilesHashed.Add(n) }
func (m *RunMetrics) AddBytesHashed(n int64)   { m.BytesHashed.Add(n) }
func (m *RunMetrics) AddCacheHits(n int64)     { m.CacheHits.Add(n) }
func (m *RunMetrics) AddFilesCopied(n int64)   { m.FilesCopied.Add(n) }
func (m *RunMetrics) AddBytesCopied(n int64)   { m.BytesCopied.Add(n) }
func (m *RunMetrics) AddFilesUpToDate(n int64) { m.FilesUpToDate.Add(n) }
func (m *RunMetrics) AddFilesDeleted(n int64)  { m.FilesDeleted.Add(n) }
func (m *RunMetrics) AddDirsCreated(n int64)   { m.DirsCreated.Add(n) }
func (m *RunMetrics) AddErrors(n int64)        { m.Errors.Add(n) }

// Log prints the run summary.
func (m *RunMetrics) Log() {
	plog.Info("SUM",
		"filesScanned", m.FilesScanned.Load(),
		"filesHashed", m.FilesHashed.Load(),
		"bytesHashed", m.BytesHashed.Load(),
		"cacheHits", m.CacheHits.Load(),
		"filesCopied", m.FilesCopied.Load(),
		"bytesCopied", m.BytesCopied.Load(),
		"filesUpToDate", m.FilesUpToDate.Load(),
		"filesDeleted", m.FilesDeleted.Load(),
		"dirsCreated", m.DirsCreated.Load(),
		"errors", m.Errors.Load(),
	)
}

// NoopMetrics disables collection without changing calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesScanned(n int64)  {}
func (m *NoopMetrics) AddFilesHashed(n int64)   {}
func (m *NoopMetrics) AddBytesHashed(n int64)   {}
func (m *NoopMetrics) AddCacheHits(n int64)     {}
func (m *NoopMetrics) AddFilesCopied(n int64)   {}
func (m *NoopMetrics) AddBytesCopied(n int64)   {}
func (m *NoopMetrics) AddFilesUpToDate(n int64) {}
func (m *NoopMetrics) AddFilesDeleted(n int64)  {}
func (m *NoopMetrics) AddDirsCreated(n int64)   {}
func (m *NoopMetrics) AddErrors(n int64)        {}
func (m *NoopMetrics) Log()                     {}

var _ Metrics = (*RunMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
