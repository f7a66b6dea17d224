package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yisiliu2005/masiv2025/internal/metrics"
)

func TestWithinBox(t *testing.T) {
	got := BBox{MinLat: 51.0, MinLon: -114.1, MaxLat: 51.5, MaxLon: -114.0}.WithinBox("polygon")
	if got != "within_box(polygon, 51, -114.1, 51.5, -114)" {
		t.Fatalf("WithinBox = %q", got)
	}
}

func TestFetchFootprints(t *testing.T) {
	var gotWhere, gotLimit, gotToken, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWhere = r.URL.Query().Get("$where")
		gotLimit = r.URL.Query().Get("$limit")
		gotToken = r.Header.Get("X-App-Token")
		_, _ = io.WriteString(w, `[
			{"struct_id":"1","polygon":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"rooftop_elev_z":"1050.5","grd_elev_min_z":"1040.5"},
			42,
			{"struct_id":2}
		]`)
	}))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.SourceRecordsSkipped.WithLabelValues(FootprintDataset))
	c := New(Config{BaseURL: srv.URL, AppToken: "tok", Limit: 10})
	got := c.FetchFootprints(context.Background())
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	if got[0].StructID.Text() != "1" || got[1].StructID.Text() != "2" {
		t.Fatalf("struct ids = %q %q", got[0].StructID.Text(), got[1].StructID.Text())
	}
	if gotPath != "/cchr-krqg.json" || gotLimit != "10" || gotToken != "tok" {
		t.Fatalf("path=%q limit=%q token=%q", gotPath, gotLimit, gotToken)
	}
	if !strings.HasPrefix(gotWhere, "within_box(polygon, 51.03893877415592, -114.07927447774654,") {
		t.Fatalf("where = %q", gotWhere)
	}
	if d := testutil.ToFloat64(metrics.SourceRecordsSkipped.WithLabelValues(FootprintDataset)) - before; d != 1 {
		t.Fatalf("skipped delta = %v, want 1", d)
	}
}

func TestFetchAssessmentsUsesMultipolygonColumn(t *testing.T) {
	var gotPath, gotWhere string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotWhere = r.URL.Query().Get("$where")
		_, _ = io.WriteString(w, `[{"address":"100 10 AV SW","assessed_value":"500000"}]`)
	}))
	defer srv.Close()
	got := New(Config{BaseURL: srv.URL}).FetchAssessments(context.Background())
	if len(got) != 1 || got[0].Address.Text() != "100 10 AV SW" {
		t.Fatalf("records = %+v", got)
	}
	if gotPath != "/4bsw-nn7w.json" || !strings.HasPrefix(gotWhere, "within_box(multipolygon,") {
		t.Fatalf("path=%q where=%q", gotPath, gotWhere)
	}
}

func TestFetchFailuresAreAbsorbed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusServiceUnavailable) }, 0},
		{"not an array", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `{"error":true}`) }, 0},
		{"truncated", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `[{"struct_id":`) }, 0},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			before := testutil.ToFloat64(metrics.SourceFailTotal.WithLabelValues(AssessmentDataset))
			got := New(Config{BaseURL: srv.URL, Timeout: tt.timeout}).FetchAssessments(context.Background())
			if got == nil || len(got) != 0 {
				t.Fatalf("got %v, want empty non-nil slice", got)
			}
			if d := testutil.ToFloat64(metrics.SourceFailTotal.WithLabelValues(AssessmentDataset)) - before; d != 1 {
				t.Fatalf("fail delta = %v, want 1", d)
			}
		})
	}
}
