package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/yisiliu2005/masiv2025/internal/dataset"
	"github.com/yisiliu2005/masiv2025/internal/filter"
	"github.com/yisiliu2005/masiv2025/internal/interpreter"
)

type emptySource struct{}

func (emptySource) FetchFootprints(context.Context) []dataset.RawFootprint   { return nil }
func (emptySource) FetchAssessments(context.Context) []dataset.RawAssessment { return nil }

type stubInterpreter struct {
	cand   filter.Candidate
	err    error
	gotKey string
}

func (s *stubInterpreter) Name() string { return "stub" }

func (s *stubInterpreter) Interpret(ctx context.Context, text string) (filter.Candidate, error) {
	s.gotKey = interpreter.APIKeyFrom(ctx)
	return s.cand, s.err
}

func year(y int) *int { return &y }

func testHolder() *dataset.Holder {
	h := dataset.NewHolder(emptySource{}, dataset.JoinOptions{})
	h.Set(dataset.JoinResult{
		Buildings: []dataset.Building{
			{ID: "a", StructID: dataset.StringScalar("a"), Height: 120, Address: "100 8 AV SW", LandUseDesignation: "CC-X", AssessedValue: 9000000, YearOfConstruction: year(1985)},
			{ID: "b", Height: 12, Address: "12 10 AV SW", LandUseDesignation: "M-C2", AssessedValue: 450000},
			{ID: "c", Height: 150.5, Address: "300 1 ST SE", LandUseDesignation: "CC-MH", AssessedValue: 20000000, YearOfConstruction: year(2010)},
		},
		Stats: dataset.JoinStats{Buildings: 3, Matched: 3},
	})
	return h
}

func newServer(t *testing.T, in interpreter.Interpreter, token string, onRefresh func(context.Context, *dataset.Snapshot)) (*httptest.Server, *dataset.Holder) {
	t.Helper()
	h := testHolder()
	srv := httptest.NewServer(BuildRoutes("/api/", Deps{Holder: h, Interpreter: in, AdminToken: token, OnRefresh: onRefresh}))
	t.Cleanup(srv.Close)
	return srv, h
}

func postQuery(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, out
}

func ids(v any) []string {
	out := []string{}
	for _, x := range v.([]any) {
		out = append(out, x.(string))
	}
	return out
}

func TestWelcomeAndHealth(t *testing.T) {
	srv, _ := newServer(t, &stubInterpreter{}, "", nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != welcome {
		t.Fatalf("welcome = %q", b)
	}

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var h map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&h)
	if h["status"] != "ok" || h["buildings"] != float64(3) {
		t.Fatalf("health = %v", h)
	}
}

func TestBuildings(t *testing.T) {
	srv, _ := newServer(t, &stubInterpreter{}, "", nil)
	resp, err := http.Get(srv.URL + "/api/buildings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct {
		Data    []map[string]any `json:"data"`
		Error   *string          `json:"error"`
		Message string           `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Data) != 3 || out.Error != nil || out.Message != "Returned 3 buildings" {
		t.Fatalf("response = %+v", out)
	}
	if out.Data[0]["struct_id"] != "a" || out.Data[1]["struct_id"] != nil {
		t.Fatalf("struct_id = %v, %v", out.Data[0]["struct_id"], out.Data[1]["struct_id"])
	}
	if out.Data[1]["year_of_construction"] != nil {
		t.Fatalf("missing year should be null, got %v", out.Data[1]["year_of_construction"])
	}
}

func TestQueryMatches(t *testing.T) {
	in := &stubInterpreter{cand: filter.Candidate{Attribute: "height", Operator: ">", Value: "100"}}
	srv, _ := newServer(t, in, "", nil)
	code, out := postQuery(t, srv, `{"query":"buildings over 100 meters","api_key":" hf_user "}`)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if got := ids(out["matching_ids"]); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Fatalf("ids = %v", got)
	}
	fp := out["filter_parsed"].(map[string]any)
	if fp["attribute"] != "height" || fp["operator"] != ">" || fp["value"] != float64(100) {
		t.Fatalf("filter_parsed = %v", fp)
	}
	if out["error"] != nil || out["message"] != "Found 2 matching buildings" {
		t.Fatalf("response = %v", out)
	}
	if out["interpreted_by"] != "stub" {
		t.Fatalf("interpreted_by = %v", out["interpreted_by"])
	}
	if in.gotKey != "hf_user" {
		t.Fatalf("api key override = %q", in.gotKey)
	}
}

func TestQueryEmptyAndInvalidBody(t *testing.T) {
	srv, _ := newServer(t, &stubInterpreter{}, "", nil)
	for _, body := range []string{`{"query":"   "}`, `{}`, `not json`} {
		code, out := postQuery(t, srv, body)
		if code != http.StatusBadRequest {
			t.Fatalf("%s: code = %d", body, code)
		}
		if len(ids(out["matching_ids"])) != 0 || out["filter_parsed"] != nil || out["error"] == nil {
			t.Fatalf("%s: response = %v", body, out)
		}
	}
}

func TestQueryParseFailures(t *testing.T) {
	cases := []struct {
		name string
		in   *stubInterpreter
	}{
		{"interpreter error", &stubInterpreter{err: errors.New("upstream down")}},
		{"unknown attribute", &stubInterpreter{cand: filter.Candidate{Attribute: "color", Operator: "==", Value: "red"}}},
		{"non numeric value", &stubInterpreter{cand: filter.Candidate{Attribute: "height", Operator: ">", Value: "tall"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newServer(t, tc.in, "", nil)
			code, out := postQuery(t, srv, `{"query":"something"}`)
			if code != http.StatusOK {
				t.Fatalf("code = %d", code)
			}
			if out["error"] != ParseFailure || out["filter_parsed"] != nil || len(ids(out["matching_ids"])) != 0 {
				t.Fatalf("response = %v", out)
			}
		})
	}
}

func TestRunQueryUsesGivenSnapshot(t *testing.T) {
	h := testHolder()
	snap := h.Load()
	in := &stubInterpreter{cand: filter.Candidate{Attribute: "address", Operator: "contains", Value: "av sw"}}
	h.Set(dataset.JoinResult{})
	res := RunQuery(context.Background(), snap, in, nil, "on avenue sw")
	if !reflect.DeepEqual(res.MatchingIDs, []string{"a", "b"}) {
		t.Fatalf("ids = %v", res.MatchingIDs)
	}
}

func TestRefresh(t *testing.T) {
	var refreshed *dataset.Snapshot
	srv, h := newServer(t, &stubInterpreter{}, "s3cret", func(_ context.Context, s *dataset.Snapshot) { refreshed = s })
	before := h.Load().Version

	do := func(token string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/refresh", nil)
		if token != "" {
			req.Header.Set("x-admin-token", token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if c := do(""); c != http.StatusForbidden {
		t.Fatalf("missing token: %d", c)
	}
	if c := do("wrong"); c != http.StatusForbidden {
		t.Fatalf("wrong token: %d", c)
	}
	if h.Load().Version != before {
		t.Fatal("rejected refresh replaced the snapshot")
	}
	if c := do("s3cret"); c != http.StatusNoContent {
		t.Fatalf("refresh: %d", c)
	}
	if h.Load().Version != before+1 || refreshed == nil || refreshed.Version != before+1 {
		t.Fatalf("snapshot not replaced: version %d", h.Load().Version)
	}
}

func TestRefreshDisabledWithoutToken(t *testing.T) {
	srv, _ := newServer(t, &stubInterpreter{}, "", nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/refresh", nil)
	req.Header.Set("x-admin-token", "")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("code = %d", resp.StatusCode)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	srv, _ := newServer(t, &stubInterpreter{}, "", nil)
	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	var st map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	snap, ok := st["snapshot"].(map[string]any)
	if !ok || st["queries"] != nil {
		t.Fatalf("stats = %v", st)
	}
	if snap["stats"].(map[string]any)["buildings"] != float64(3) {
		t.Fatalf("snapshot stats = %v", snap)
	}

	resp, err = http.Get(srv.URL + "/api/metrics")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(b), `buildings_requests_total{route="stats",status="200"}`) {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestRefreshSurvivesClientDisconnect(t *testing.T) {
	h := testHolder()
	before := h.Load().Version
	routes := BuildRoutes("/api", Deps{Holder: h, Interpreter: &stubInterpreter{}, AdminToken: "s3cret"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil).WithContext(ctx)
	req.Header.Set("x-admin-token", "s3cret")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d, body = %s", rec.Code, rec.Body.String())
	}
	if h.Load().Version != before+1 {
		t.Fatalf("version = %d, want %d", h.Load().Version, before+1)
	}
}
