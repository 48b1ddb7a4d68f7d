package analytics

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func imsis(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("22288%010d", i)
	}
	return out
}

func TestQuery_Validate(t *testing.T) {
	valid := Query{Period: "2026-03", CustomerID: "acme_01", IMSIs: []string{"222880000000001"}}

	tests := []struct {
		name      string
		mutate    func(q *Query)
		wantField string
	}{
		{"valid", func(q *Query) {}, ""},
		{"valid hyphen customer", func(q *Query) { q.CustomerID = "acme-eu-1" }, ""},
		{"max IMSIs", func(q *Query) { q.IMSIs = imsis(MaxIMSIs) }, ""},
		{"empty period", func(q *Query) { q.Period = "" }, "period"},
		{"month 13", func(q *Query) { q.Period = "2026-13" }, "period"},
		{"month 00", func(q *Query) { q.Period = "2026-00" }, "period"},
		{"day included", func(q *Query) { q.Period = "2026-03-01" }, "period"},
		{"short year", func(q *Query) { q.Period = "26-03" }, "period"},
		{"empty customer", func(q *Query) { q.CustomerID = "" }, "customerId"},
		{"customer with space", func(q *Query) { q.CustomerID = "acme corp" }, "customerId"},
		{"customer too long", func(q *Query) { q.CustomerID = strings.Repeat("a", 65) }, "customerId"},
		{"customer injection", func(q *Query) { q.CustomerID = "acme';--" }, "customerId"},
		{"no IMSIs", func(q *Query) { q.IMSIs = nil }, "imsis"},
		{"too many IMSIs", func(q *Query) { q.IMSIs = imsis(MaxIMSIs + 1) }, "imsis"},
		{"short IMSI", func(q *Query) { q.IMSIs = []string{"22288000000001"} }, "imsis[0]"},
		{"long IMSI", func(q *Query) { q.IMSIs = []string{"2228800000000011"} }, "imsis[0]"},
		{"alpha IMSI", func(q *Query) { q.IMSIs = []string{"222880000000001", "22288000000000x"} }, "imsis[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			q.IMSIs = append([]string(nil), valid.IMSIs...)
			tt.mutate(&q)

			err := q.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if validationErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", validationErr.Field, tt.wantField)
			}
		})
	}
}

func TestQuery_Normalize(t *testing.T) {
	q := Query{
		Period:     " 2026-03 ",
		CustomerID: "\tacme\n",
		IMSIs:      []string{" 222880000000002", "222880000000001", "", "222880000000002 ", "222880000000001"},
	}

	got := q.Normalize()
	want := Query{
		Period:     "2026-03",
		CustomerID: "acme",
		IMSIs:      []string{"222880000000002", "222880000000001"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("normalized query should validate: %v", err)
	}
	if len(q.IMSIs) != 5 {
		t.Error("Normalize must not modify the receiver")
	}
}

func TestQuery_NormalizeDuplicatesWithinLimit(t *testing.T) {
	// 150 entries collapsing to 2 distinct IMSIs are accepted after Normalize.
	var list []string
	for i := 0; i < 75; i++ {
		list = append(list, "222880000000001", "222880000000002")
	}

	q := Query{Period: "2026-03", CustomerID: "acme", IMSIs: list}.Normalize()
	if len(q.IMSIs) != 2 {
		t.Fatalf("expected 2 IMSIs, got %d", len(q.IMSIs))
	}
	if err := q.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "period", Reason: "expected YYYY-MM"}
	if got, want := err.Error(), "analytics: invalid period: expected YYYY-MM"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func BenchmarkQuery_Validate(b *testing.B) {
	q := Query{Period: "2026-03", CustomerID: "acme", IMSIs: imsis(MaxIMSIs)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := q.Validate(); err != nil {
			b.Fatal(err)
		}
	}
}
