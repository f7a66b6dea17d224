package filter

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

type rec struct {
	id     string
	fields map[string]any
}

func (r *rec) RecordID() string { return r.id }
func (r *rec) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func TestParseNormalizesNumericString(t *testing.T) {
	f, err := Parse(Candidate{Attribute: "height", Operator: ">", Value: "100"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if n, ok := f.Value.Float(); !f.Value.IsNumber() || !ok || n != 100.0 {
		t.Fatalf("value = %+v, want number 100", f.Value)
	}
	if f.String() != "height > 100" {
		t.Fatalf("String = %q", f.String())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want error
	}{
		{"unknown attribute", Candidate{Attribute: "color", Operator: ">", Value: 1.0}, ErrUnknownAttribute},
		{"unknown operator", Candidate{Attribute: "height", Operator: ">=", Value: 1.0}, ErrUnknownOperator},
		{"missing attribute", Candidate{Operator: ">", Value: 1.0}, ErrMissingField},
		{"missing operator", Candidate{Attribute: "height", Value: 1.0}, ErrMissingField},
		{"missing value", Candidate{Attribute: "height", Operator: ">"}, ErrMissingField},
		{"non-numeric height", Candidate{Attribute: "height", Operator: ">", Value: "tall"}, ErrInvalidValue},
		{"bool year", Candidate{Attribute: "year_of_construction", Operator: "<", Value: true}, ErrInvalidValue},
		{"nan value", Candidate{Attribute: "assessed_value", Operator: ">", Value: "NaN"}, ErrInvalidValue},
		{"object address", Candidate{Attribute: "address", Operator: "contains", Value: map[string]any{}}, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.c)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse err = %v, want %v", err, tt.want)
			}
		})
	}
	if Validate(Candidate{Attribute: "color", Operator: ">", Value: 1}) {
		t.Fatalf("Validate accepted unknown attribute")
	}
}

func TestParseFromJSON(t *testing.T) {
	var c Candidate
	if err := json.Unmarshal([]byte(`{"attribute":"address","operator":"contains","value":100}`), &c); err != nil {
		t.Fatal(err)
	}
	f, err := Parse(c)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Value.IsNumber() || f.Value.String() != "100" {
		t.Fatalf("string attribute must keep string form, got %+v", f.Value)
	}
	b, _ := json.Marshal(f)
	if string(b) != `{"attribute":"address","operator":"contains","value":"100"}` {
		t.Fatalf("marshal = %s", b)
	}
}

func mustParse(t *testing.T, attr, op string, v any) Filter {
	t.Helper()
	f, err := Parse(Candidate{Attribute: attr, Operator: op, Value: v})
	if err != nil {
		t.Fatalf("Parse(%s %s %v): %v", attr, op, v, err)
	}
	return f
}

func TestEvaluate(t *testing.T) {
	year := 1985
	records := []rec{
		{id: "1", fields: map[string]any{"height": 40.0, "land_use_designation": "M-C1", "assessed_value": int64(500000), "address": "100 MAIN ST SW", "year_of_construction": year}},
		{id: "2", fields: map[string]any{"height": 10.0, "land_use_designation": "", "assessed_value": int64(0), "address": ""}},
		{id: "3", fields: map[string]any{"height": 25.5, "land_use_designation": "R-CG", "assessed_value": int64(750000), "address": "12 Oak Ave", "year_of_construction": 2001}},
	}
	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"greater", mustParse(t, "height", ">", 20), []string{"1", "3"}},
		{"less", mustParse(t, "height", "<", "20"), []string{"2"}},
		{"contains case-insensitive", mustParse(t, "land_use_designation", "contains", "r-"), []string{"3"}},
		{"equal numeric canonical", mustParse(t, "assessed_value", "==", 500000.0), []string{"1"}},
		{"equal case-insensitive", mustParse(t, "address", "==", "12 oak ave"), []string{"3"}},
		{"absent field skipped", mustParse(t, "year_of_construction", "<", 2100), []string{"1", "3"}},
		{"contains on number never matches", mustParse(t, "height", "contains", 40), []string{}},
		{"greater on string is non-match", mustParse(t, "address", ">", "5"), []string{}},
		{"input order", mustParse(t, "assessed_value", ">", -1), []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(records, tt.f)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateHeightThreshold(t *testing.T) {
	records := []rec{
		{id: "1", fields: map[string]any{"height": 40.0}},
		{id: "2", fields: map[string]any{"height": 10.0}},
	}
	if got := Evaluate(records, mustParse(t, "height", ">", 20)); !reflect.DeepEqual(got, []string{"1"}) {
		t.Fatalf("Evaluate = %v, want [1]", got)
	}
}
