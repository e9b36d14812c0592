package formfield

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const projectPage = `<!DOCTYPE html>
<html><body>
<form id="project">
  <input id="projectName" value="  Plant 7 Retrofit ">
  <input name="facility_name" value="">
  <input name="facility" value="North Plant">
  <input name="location" value="Austin" placeholder="City, State">
  <select name="state">
    <option value="">--</option>
    <option value="Texas" selected>Texas</option>
  </select>
  <textarea name="facility_address">123 Main St, Austin, TX 78701</textarea>
  <input type="email" class="contact wide" value="ops@example.com">
</form>
<div class="analysis-result" data-analysis-result="pf">Power factor 0.92</div>
<span data-metric="thd">4.1%</span>
</body></html>`

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return doc
}

func TestDocumentLookup_Selectors(t *testing.T) {
	doc := mustParse(t, projectPage)

	tests := []struct {
		sel     string
		want    []string // FieldValue of each match, in document order
		wantErr bool
	}{
		{sel: "#projectName", want: []string{"Plant 7 Retrofit"}},
		{sel: "input[name=facility]", want: []string{"North Plant"}},
		{sel: "input[name='facility']", want: []string{"North Plant"}},
		{sel: `input[placeholder="City, State"]`, want: []string{"Austin"}},
		{sel: `[placeholder="a]b"]`, want: nil},
		{sel: "form input[name=location]", want: []string{"Austin"}},
		{sel: "form > select", want: []string{"Texas"}},
		{sel: "INPUT.contact.wide", want: []string{"ops@example.com"}},
		{sel: "*[type=email]", want: []string{"ops@example.com"}},
		{sel: "#facility_name, input[name=facility]", want: []string{"North Plant"}},
		{sel: "[data-metric]", want: []string{"4.1%"}},
		{sel: "input[name", wantErr: true},
		{sel: "#", wantErr: true},
		{sel: "a,,b", wantErr: true},
		{sel: "[=x]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			els, err := doc.Lookup(context.Background(), tt.sel)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Lookup(%q) = %+v, want error", tt.sel, els)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q): %v", tt.sel, err)
			}
			var got []string
			for _, el := range els {
				got = append(got, el.FieldValue())
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Lookup(%q) mismatch (-want +got):\n%s", tt.sel, diff)
			}
		})
	}
}

func TestDocumentLookup(t *testing.T) {
	doc := mustParse(t, projectPage)
	ctx := context.Background()

	els, err := doc.Lookup(ctx, "select[name=state]")
	if err != nil {
		t.Fatal(err)
	}
	if len(els) != 1 || els[0].Value != "Texas" {
		t.Fatalf("select value = %+v, want Texas", els)
	}

	els, _ = doc.Lookup(ctx, "textarea")
	if len(els) != 1 || els[0].FieldValue() != "123 Main St, Austin, TX 78701" {
		t.Errorf("textarea = %+v", els)
	}

	els, _ = doc.Lookup(ctx, ".contact.wide")
	if len(els) != 1 || els[0].Value != "ops@example.com" {
		t.Errorf("class compound = %+v", els)
	}

	els, _ = doc.Lookup(ctx, "#analysisResults, .analysis-result, [data-metric]")
	if len(els) != 2 {
		t.Fatalf("comma list matched %d elements, want 2", len(els))
	}
	if els[0].FieldValue() != "Power factor 0.92" || els[1].Attrs["data-metric"] != "thd" {
		t.Errorf("comma list order/content = %+v", els)
	}

	els, err = doc.Lookup(ctx, "#nope")
	if err != nil || len(els) != 0 {
		t.Errorf("missing id = %v, %v; want empty, nil", els, err)
	}

	if _, err := doc.Lookup(ctx, "input[name"); err == nil {
		t.Error("expected error for unterminated attribute")
	}
}

func TestDocumentLookup_CancelledContext(t *testing.T) {
	doc := mustParse(t, projectPage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := doc.Lookup(ctx, "input"); !errors.Is(err, context.Canceled) {
		t.Errorf("Lookup with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestSelectWithoutSelectedUsesFirstOption(t *testing.T) {
	doc := mustParse(t, `<select id="state"><option>Ohio</option><option value="TX">Texas</option></select>`)
	els, _ := doc.Lookup(context.Background(), "#state")
	if len(els) != 1 || els[0].Value != "Ohio" {
		t.Errorf("select = %+v, want Ohio from first option text", els)
	}
}

func TestTableResolve(t *testing.T) {
	doc := mustParse(t, projectPage)

	values, checks := DefaultTable().Resolve(context.Background(), doc)

	want := map[string]string{
		"project_name":     "Plant 7 Retrofit",
		"facility_name":    "North Plant",
		"facility_address": "123 Main St, Austin, TX 78701",
		"city":             "Austin",
		"state":            "Texas",
		"contact_email":    "ops@example.com",
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("Resolve values (-want +got):\n%s", diff)
	}

	if len(checks) != len(DefaultTable()) {
		t.Fatalf("got %d checks, want one per field", len(checks))
	}
	for _, c := range checks {
		if _, ok := want[c.Field]; ok != c.Found {
			t.Errorf("check %s found=%v, want %v", c.Field, c.Found, ok)
		}
	}
	// Empty facility_name input is skipped in favour of the next alias.
	if checks[1].Selector != "input[name=facility]" {
		t.Errorf("facility_name resolved via %q", checks[1].Selector)
	}
}

func TestTableResolve_EmptyPage(t *testing.T) {
	doc := mustParse(t, `<html><body><p>nothing here</p></body></html>`)
	values, checks := DefaultTable().Resolve(context.Background(), doc)
	if values == nil || len(values) != 0 {
		t.Errorf("values = %#v, want empty non-nil map", values)
	}
	for _, c := range checks {
		if c.Found {
			t.Errorf("unexpected found field %s", c.Field)
		}
	}
}

func TestTableResolve_RecordsLookupErrors(t *testing.T) {
	table := Table{{Key: "city", Selectors: []string{"div > input", "#city"}}}
	doc := mustParse(t, `<input id="city" value="Denver">`)

	values, checks := table.Resolve(context.Background(), doc)
	if values["city"] != "Denver" {
		t.Errorf("city = %q, want Denver after bad alias", values["city"])
	}
	if checks[0].Err == nil {
		t.Error("expected the invalid alias error to be recorded")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(projectPage), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	els, _ := doc.Lookup(context.Background(), "input")
	if len(els) != 5 {
		t.Errorf("got %d inputs, want 5", len(els))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Error("expected error for missing file")
	}
}
