package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordActionCountsByLabels(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("Install", ResultSuccess))
	RecordAction("Install", ResultSuccess)
	RecordAction("Install", ResultSuccess)
	after := testutil.ToFloat64(actionsTotal.WithLabelValues("Install", ResultSuccess))
	if after-before != 2 {
		t.Fatalf("expected 2 increments, got %v", after-before)
	}
}

func TestCollectorsAreRegistered(t *testing.T) {
	RecordExtraction(ResultSuccess)
	RecordRemoval()
	RecordConflict("ignore")
	RecordProjectFailure()
	ObserveResolution(10 * time.Millisecond)

	n, err := testutil.GatherAndCount(Registry)
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected gathered series")
	}
}

func TestWriteTextfile(t *testing.T) {
	RecordRemoval()
	path := filepath.Join(t.TempDir(), "anvilpkg.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "anvilpkg_store_removals_total") {
		t.Fatalf("textfile missing removals counter:\n%s", data)
	}
}
