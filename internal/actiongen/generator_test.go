// File: internal/actiongen/generator_test.go
package actiongen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func genProfile() *schemas.UserProfile {
	return schemas.NewUserProfile(map[string]interface{}{
		"user": map[string]interface{}{
			"personal_info": map[string]interface{}{
				"first_name": "Ada",
				"last_name":  "Lovelace",
			},
			"work_eligibility": map[string]interface{}{
				"authorized": "Yes",
			},
			"experience": map[string]interface{}{
				"years_total": float64(9),
			},
		},
	})
}

func field(id, label, key, xpath string, t schemas.ElementType, y float64) schemas.IdentifiedElement {
	return schemas.IdentifiedElement{
		ID:                  id,
		VisualLabel:         label,
		PredictedType:       t,
		SemanticKey:         key,
		DOMPathPrimary:      xpath,
		ElementBBox:         schemas.BBox{XMin: 100, YMin: y, XMax: 300, YMax: y + 30},
		ConfidenceGrounding: 0.9,
	}
}

func newTestGenerator(t *testing.T) *Generator {
	g, err := NewGenerator(zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestGenerateOrdering(t *testing.T) {
	g := newTestGenerator(t)

	// Inputs arrive out of page order; the submit button sits above a field.
	elements := []schemas.IdentifiedElement{
		field("last", "Last Name", "user.personal_info.last_name", `//input[2]`, schemas.ElementTypeText, 120),
		field("submit", "Submit Application", "", `//button[1]`, schemas.ElementTypeButton, 90),
		field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
	}

	page := g.Generate(elements, genProfile(), nil, nil)
	require.NotNil(t, page.Navigation)
	require.Len(t, page.Fills, 2)

	// Fills are top-to-bottom; navigation is strictly last.
	assert.Equal(t, `//input[1]`, page.Fills[0].TargetDOMPath)
	assert.Equal(t, `//input[2]`, page.Fills[1].TargetDOMPath)

	all := page.All()
	assert.Equal(t, schemas.ActionClick, all[len(all)-1].Type)
	assert.Equal(t, `//button[1]`, all[len(all)-1].TargetDOMPath)
	assert.Equal(t, ExpectConfirmationOrNext, page.ExpectedNextPageType)
}

func TestGenerateValueResolution(t *testing.T) {
	g := newTestGenerator(t)

	t.Run("overrides beat the profile", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(), map[string]string{"first": "Augusta"}, nil)
		require.Len(t, page.Fills, 1)
		assert.Equal(t, "Augusta", page.Fills[0].Value)
		assert.Equal(t, schemas.SourceUserOverride, page.Fills[0].Source)
	})

	t.Run("profile values carry the profile source", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(), nil, nil)
		require.Len(t, page.Fills, 1)
		assert.Equal(t, "Ada", page.Fills[0].Value)
		assert.Equal(t, schemas.SourceProfile, page.Fills[0].Source)
	})

	t.Run("fields without data are skipped and surfaced", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
			field("salary", "Salary Expectation", "user.salary.expectation", `//input[2]`, schemas.ElementTypeText, 90),
		}
		page := g.Generate(elements, genProfile(), nil, nil)
		assert.Len(t, page.Fills, 1)
		require.Len(t, page.Skipped, 1)
		assert.Equal(t, "salary", page.Skipped[0].FieldID)
	})

	t.Run("sentinel-keyed fields never pull profile data", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("odd", "Favorite Color", sentinelKey, `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(), nil, nil)
		assert.Empty(t, page.Fills)
		assert.Len(t, page.Skipped, 1)
	})

	t.Run("ungrounded fields are ignored entirely", func(t *testing.T) {
		el := field("ghost", "Ghost", "user.personal_info.first_name", "", schemas.ElementTypeText, 50)
		page := g.Generate([]schemas.IdentifiedElement{el}, genProfile(), nil, nil)
		assert.Empty(t, page.Fills)
		assert.Empty(t, page.Skipped)
	})
}

func TestGenerateChoiceFields(t *testing.T) {
	g := newTestGenerator(t)

	t.Run("dropdown matches a visible option", func(t *testing.T) {
		el := field("auth", "Are you authorized to work?", "user.work_eligibility.authorized", `//select[1]`, schemas.ElementTypeDropdown, 50)
		el.Options = []string{"Yes", "No", "Prefer not to say"}
		page := g.Generate([]schemas.IdentifiedElement{el}, genProfile(), nil, nil)
		require.Len(t, page.Fills, 1)
		assert.Equal(t, schemas.ActionSelectOption, page.Fills[0].Type)
		assert.Equal(t, "Yes", page.Fills[0].Value)
	})

	t.Run("dropdown with no matching option is skipped", func(t *testing.T) {
		el := field("auth", "Work authorization", "user.work_eligibility.authorized", `//select[1]`, schemas.ElementTypeDropdown, 50)
		el.Options = []string{"H-1B", "TN", "E-3"}
		page := g.Generate([]schemas.IdentifiedElement{el}, genProfile(), nil, nil)
		assert.Empty(t, page.Fills)
		assert.Len(t, page.Skipped, 1)
	})

	t.Run("checkbox direction follows the value", func(t *testing.T) {
		el := field("auth", "Authorized to work", "user.work_eligibility.authorized", `//input[1]`, schemas.ElementTypeCheckbox, 50)
		el.Options = nil
		page := g.Generate([]schemas.IdentifiedElement{el}, genProfile(), nil, nil)
		require.Len(t, page.Fills, 1)
		assert.Equal(t, schemas.ActionCheck, page.Fills[0].Type)
		assert.Empty(t, page.Fills[0].Value)
	})
}

func TestGenerateRejectedValues(t *testing.T) {
	g := newTestGenerator(t)

	t.Run("a rejected value is never proposed again", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(), nil, map[string]string{`//input[1]`: "Ada"})
		assert.Empty(t, page.Fills)
		require.Len(t, page.Skipped, 1)
		assert.Equal(t, "skipped: value rejected by page validation", page.Skipped[0].Reason)
	})

	t.Run("a user override may re-fill a rejected target", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(),
			map[string]string{"first": "Augusta"},
			map[string]string{`//input[1]`: "Ada"})
		require.Len(t, page.Fills, 1)
		assert.Equal(t, "Augusta", page.Fills[0].Value)
		assert.Equal(t, schemas.SourceUserOverride, page.Fills[0].Source)
	})

	t.Run("dropdowns skip a rejected option", func(t *testing.T) {
		el := field("auth", "Are you authorized to work?", "user.work_eligibility.authorized", `//select[1]`, schemas.ElementTypeDropdown, 50)
		el.Options = []string{"Yes", "No"}
		page := g.Generate([]schemas.IdentifiedElement{el}, genProfile(), nil, map[string]string{`//select[1]`: "Yes"})
		assert.Empty(t, page.Fills)
		assert.Len(t, page.Skipped, 1)
	})

	t.Run("other targets are unaffected", func(t *testing.T) {
		elements := []schemas.IdentifiedElement{
			field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 50),
		}
		page := g.Generate(elements, genProfile(), nil, map[string]string{`//input[9]`: "Ada"})
		require.Len(t, page.Fills, 1)
		assert.Equal(t, "Ada", page.Fills[0].Value)
	})
}

func TestGenerateIncompletePage(t *testing.T) {
	g := newTestGenerator(t)

	elements := []schemas.IdentifiedElement{
		field("salary", "Salary Expectation", "user.salary.expectation", `//input[1]`, schemas.ElementTypeText, 50),
		field("next", "Next", "", `//button[1]`, schemas.ElementTypeButton, 90),
	}
	page := g.Generate(elements, genProfile(), nil, nil)

	// Nothing resolved: the page is incomplete and navigation is withheld.
	assert.True(t, page.Incomplete)
	assert.Nil(t, page.Navigation)
	assert.Empty(t, page.All())
}

func TestChooseNavigationPreference(t *testing.T) {
	g := newTestGenerator(t)

	back := field("back", "Back", "", `//button[1]`, schemas.ElementTypeButton, 50)
	next := field("next", "Save and Continue", "", `//button[2]`, schemas.ElementTypeButton, 50)
	elements := []schemas.IdentifiedElement{
		back, next,
		field("first", "First Name", "user.personal_info.first_name", `//input[1]`, schemas.ElementTypeText, 20),
	}

	page := g.Generate(elements, genProfile(), nil, nil)
	require.NotNil(t, page.Navigation)
	assert.Equal(t, `//button[2]`, page.Navigation.TargetDOMPath)
	assert.Equal(t, ExpectNextFormStep, page.ExpectedNextPageType)
}
