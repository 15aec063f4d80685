package challenge

import (
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// Field names that look legitimate to a form-filling bot but are
// never shown to users. Inspect recognizes all of them so a form can
// embed any generated honeypot without the server tracking which.
var trapFieldNames = []string{
	"website_url",
	"company_fax",
	"address_line_3",
	"referral_code_2",
}

// Honeypot is a hidden form field spec. Not persisted; the caller
// embeds it in markup and echoes the submitted value back in the
// form data.
type Honeypot struct {
	FieldName string `json:"field_name"`
	ElementID string `json:"element_id"`
}

// NewHoneypot picks a trap field name and a unique element id.
func NewHoneypot() Honeypot {
	name := trapFieldNames[rand.Intn(len(trapFieldNames))]
	return Honeypot{
		FieldName: name,
		ElementID: "field-" + uuid.New().String()[:8],
	}
}

// InspectForm reports whether any known trap field was submitted with
// a non-empty value. Legitimate users never fill these fields, so any
// value at all is a bot signal.
func InspectForm(formData map[string]string) (string, bool) {
	for _, name := range trapFieldNames {
		if value, ok := formData[name]; ok && strings.TrimSpace(value) != "" {
			return name, true
		}
	}
	return "", false
}
