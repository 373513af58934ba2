package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordExport(t *testing.T) {
	before := testutil.ToFloat64(ExportsTotal.WithLabelValues("word", "error"))
	RecordExport("word", errors.New("boom"), 10*time.Millisecond)
	after := testutil.ToFloat64(ExportsTotal.WithLabelValues("word", "error"))
	if after != before+1 {
		t.Errorf("expected error counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestRecordCaption(t *testing.T) {
	before := testutil.ToFloat64(CaptionRequestsTotal.WithLabelValues("stale"))
	RecordCaption("stale", time.Second)
	if got := testutil.ToFloat64(CaptionRequestsTotal.WithLabelValues("stale")); got != before+1 {
		t.Errorf("expected stale counter %v, got %v", before+1, got)
	}
}
