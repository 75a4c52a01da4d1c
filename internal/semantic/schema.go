// File: internal/semantic/schema.go

// Package semantic assigns canonical profile-schema keys to grounded form
// fields through a closed-vocabulary model classification.
package semantic

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// SentinelKey is the designated "no match" key. Out-of-schema fields must
// resolve to it, never to a forced best-effort key.
const SentinelKey = "system_internal.other_unspecified_field"

// SchemaKey is one canonical key with the description shown to the model.
type SchemaKey struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Schema is the versioned closed vocabulary of semantic keys. It is loaded
// explicitly and injected into the matcher at construction; there is no
// module-level key registry.
type Schema struct {
	Version      string      `json:"version"`
	Keys         []SchemaKey `json:"keys"`
	QuestionKeys []string    `json:"question_keys"`

	keySet map[string]bool
}

// LoadSchema reads a schema document from disk.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading semantic schema: %w", err)
	}
	var s Schema
	if err := jsonAPI.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding semantic schema: %w", err)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultSchema returns the built-in vocabulary used when no schema file is
// configured.
func DefaultSchema() *Schema {
	s := &Schema{
		Version: "1.0",
		Keys: []SchemaKey{
			{"user.personal_info.first_name", "Applicant's first / given name"},
			{"user.personal_info.last_name", "Applicant's last / family name"},
			{"user.personal_info.full_name", "Applicant's full name in one field"},
			{"user.contact_info.email_primary", "Primary email address"},
			{"user.contact_info.phone_primary", "Primary phone number"},
			{"user.address_primary.street", "Street address line"},
			{"user.address_primary.city", "City of residence"},
			{"user.address_primary.state", "State / province / region"},
			{"user.address_primary.postal_code", "Postal or ZIP code"},
			{"user.address_primary.country", "Country of residence"},
			{"user.links.linkedin_url", "LinkedIn profile URL"},
			{"user.links.portfolio_url", "Personal website or portfolio URL"},
			{"user.links.github_url", "GitHub profile URL"},
			{"user.work_eligibility.authorized", "Authorized to work in the country (yes/no)"},
			{"user.work_eligibility.requires_sponsorship", "Requires visa sponsorship (yes/no)"},
			{"user.experience.years_total", "Total years of professional experience"},
			{"user.education.highest_degree", "Highest degree attained"},
			{"user.salary.expectation", "Salary expectation"},
			{"user.documents.resume_path", "Resume / CV file upload"},
			{"user.documents.cover_letter_path", "Cover letter file upload"},
			{"user.eeo.gender", "Voluntary EEO gender disclosure"},
			{"user.eeo.race", "Voluntary EEO race/ethnicity disclosure"},
			{"user.eeo.veteran_status", "Voluntary veteran status disclosure"},
			{"user.eeo.disability_status", "Voluntary disability status disclosure"},
			{"application.custom_question.generic", "Free-text screening question specific to this application"},
			{"application.cover_letter_text_final", "Cover letter text typed directly into the form"},
		},
		QuestionKeys: []string{
			"application.custom_question.generic",
			"application.cover_letter_text_final",
		},
	}
	if err := s.init(); err != nil {
		// The built-in schema is validated by tests; reaching this is a bug.
		panic(err)
	}
	return s
}

func (s *Schema) init() error {
	if s.Version == "" {
		return fmt.Errorf("semantic schema missing version")
	}
	if len(s.Keys) == 0 {
		return fmt.Errorf("semantic schema has no keys")
	}
	s.keySet = make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		if k.Key == "" {
			return fmt.Errorf("semantic schema contains an empty key")
		}
		if s.keySet[k.Key] {
			return fmt.Errorf("semantic schema contains duplicate key %q", k.Key)
		}
		s.keySet[k.Key] = true
	}
	for _, q := range s.QuestionKeys {
		if !s.keySet[q] {
			return fmt.Errorf("question key %q is not in the schema", q)
		}
	}
	return nil
}

// IsValid reports whether key belongs to the closed vocabulary (sentinel
// included).
func (s *Schema) IsValid(key string) bool {
	return key == SentinelKey || s.keySet[key]
}

// IsQuestion reports whether the key denotes an open-ended question field.
func (s *Schema) IsQuestion(key string) bool {
	for _, q := range s.QuestionKeys {
		if q == key {
			return true
		}
	}
	return false
}

// KeyList returns every key (without the sentinel) in declaration order.
func (s *Schema) KeyList() []string {
	out := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		out[i] = k.Key
	}
	return out
}
