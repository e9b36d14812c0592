package formfield

import (
	"context"
)

// Field maps one logical key to the selectors that may hold its value,
// in priority order.
type Field struct {
	Key       string   `yaml:"key" json:"key"`
	Selectors []string `yaml:"selectors" json:"selectors"`
}

// Table is an ordered list of fields.
type Table []Field

// Check records how one field was resolved.
type Check struct {
	Field    string `json:"field"`
	Found    bool   `json:"found"`
	Selector string `json:"selector,omitempty"`
	Err      error  `json:"-"`
}

// DefaultTable covers every project field the EM&V analysis page
// renders, including the legacy names older page revisions used.
func DefaultTable() Table {
	return Table{
		{Key: "project_name", Selectors: []string{"#projectName", "#project_name", "input[name=project_name]", "input[name=projectName]"}},
		{Key: "facility_name", Selectors: []string{"#facilityName", "#facility_name", "input[name=facility_name]", "input[name=facility]"}},
		{Key: "facility_address", Selectors: []string{"#facilityAddress", "#facility_address", "input[name=facility_address]", "textarea[name=facility_address]", "input[name=address]"}},
		{Key: "city", Selectors: []string{"#city", "input[name=location]", "input[name=city]", "input[name=facility_city]"}},
		{Key: "state", Selectors: []string{"#state", "select[name=state]", "input[name=state]", "input[name=facility_state]"}},
		{Key: "zip", Selectors: []string{"#zip", "#zipCode", "input[name=zip]", "input[name=zip_code]", "input[name=postal_code]"}},
		{Key: "contact_name", Selectors: []string{"#contactName", "#contact_name", "input[name=contact_name]"}},
		{Key: "contact_email", Selectors: []string{"#contactEmail", "#contact_email", "input[name=contact_email]", "input[type=email]"}},
		{Key: "contact_phone", Selectors: []string{"#contactPhone", "#contact_phone", "input[name=contact_phone]", "input[type=tel]"}},
		{Key: "utility_name", Selectors: []string{"#utilityName", "#utility_name", "input[name=utility_name]", "input[name=utility]", "select[name=utility]"}},
		{Key: "account_number", Selectors: []string{"#accountNumber", "#account_number", "input[name=account_number]", "input[name=utility_account]"}},
	}
}

// Resolve reads every field from r. For each field the first element
// with a non-empty value wins; empty fields are omitted from the result.
// Lookup errors are recorded in the field's Check and otherwise treated
// as a miss. The returned map is never nil.
func (t Table) Resolve(ctx context.Context, r Reader) (map[string]string, []Check) {
	values := make(map[string]string, len(t))
	checks := make([]Check, 0, len(t))

	for _, f := range t {
		check := Check{Field: f.Key}
	selectors:
		for _, sel := range f.Selectors {
			els, err := r.Lookup(ctx, sel)
			if err != nil {
				check.Err = err
				continue
			}
			for _, el := range els {
				if v := el.FieldValue(); v != "" {
					values[f.Key] = v
					check.Found = true
					check.Selector = sel
					break selectors
				}
			}
		}
		checks = append(checks, check)
	}
	return values, checks
}
