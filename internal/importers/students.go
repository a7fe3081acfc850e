package importers

import "github.com/JonMunkholm/sheetimport/internal/core"

// Students is the built-in example importer. Its labels cover the usual
// English and German header spellings.
func Students() Spec {
	return Spec{
		Name:        "students",
		Description: "Student roster: first name, last name and email",
		Table:       "students",
		BatchSize:   500,
		Attributes: []AttributeSpec{
			{
				AttributeSpec: core.AttributeSpec{
					Key:      "first_name",
					Labels:   []string{"First Name", "FirstName", "fname", "Vorname"},
					Required: true,
				},
				Normalize: []string{"collapse"},
			},
			{
				AttributeSpec: core.AttributeSpec{
					Key:      "last_name",
					Labels:   []string{"Last Name", "LastName", "lname", "Nachname"},
					Required: true,
				},
				Normalize: []string{"collapse"},
			},
			{
				AttributeSpec: core.AttributeSpec{
					Key:    "email",
					Labels: []string{"Email", "E-Mail", "email", "mail"},
				},
				Normalize: []string{"trim", "lower"},
			},
		},
	}
}

// Builtin returns the importers available without a definitions file.
func Builtin() []Spec {
	return []Spec{Students()}
}
