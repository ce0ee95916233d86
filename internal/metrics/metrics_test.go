package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryExposesCountersOnScrape(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown(context.Background()) //nolint:errcheck

	r.FilesScanned.WithLabelValues("upserted").Add(3)
	r.NotifyFailures.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "repovector_files_scanned_total") {
		t.Error("expected files_scanned_total in scrape output")
	}
	if !strings.Contains(body, "repovector_notify_failures_total 1") {
		t.Error("expected notify_failures_total incremented in scrape output")
	}
}

func TestMeterIsUsable(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Shutdown(context.Background()) //nolint:errcheck

	meter := r.Meter("repovector/scan")
	if meter == nil {
		t.Fatal("expected non-nil meter")
	}
	if _, err := meter.Int64Counter("scan_files_probe"); err != nil {
		t.Fatalf("creating counter instrument: %v", err)
	}
}
