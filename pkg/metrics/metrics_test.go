package metrics

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	m := &RunMetrics{}
	m.AddFilesScanned(10)
	m.AddFilesScanned(5)
	m.AddBytesCopied(1024)
	m.AddErrors(1)

	if got := m.FilesScanned.Load(); got != 15 {
		t.Errorf("FilesScanned = %d; want 15", got)
	}
	if got := m.BytesCopied.Load(); got != 1024 {
		t.Errorf("BytesCopied = %d; want 1024", got)
	}
	if got := m.Errors.Load(); got != 1 {
		t.Errorf("Errors = %d; want 1", got)
	}
}

func TestCountersConcurrent(t *testing.T) {
	m := &RunMetrics{}
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				m.AddFilesCopied(1)
				m.AddBytesCopied(2)
			}
		}()
	}
	wg.Wait()

	if got := m.FilesCopied.Load(); got != 16000 {
		t.Errorf("FilesCopied = %d; want 16000", got)
	}
	if got := m.BytesCopied.Load(); got != 32000 {
		t.Errorf("BytesCopied = %d; want 32000", got)
	}
}

func TestNoopAcceptsEverything(t *testing.T) {
	var m Metrics = &NoopMetrics{}
	m.AddFilesScanned(1)
	m.AddFilesHashed(1)
	m.AddCacheHits(1)
	m.AddErrors(1)
	m.Log()
}
