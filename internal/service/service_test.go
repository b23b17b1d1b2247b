package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpshade/pocket-capsules/internal/catalog"
	"github.com/dpshade/pocket-capsules/internal/errors"
	"github.com/dpshade/pocket-capsules/internal/models"
)

const builtinCount = 49

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Options{LibraryDir: t.TempDir(), IncludeBuiltin: true})
	require.NoError(t, err)
	require.NoError(t, svc.InitLibrary())
	svc.newID = func() string { return "00000000-0000-4000-8000-000000000001" }
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC) }
	return svc
}

func submission() *models.Capsule {
	return &models.Capsule{
		ID:          "  Newsletter-Signup ",
		Name:        "Newsletter <b>Signup</b>",
		Category:    "Forms",
		Description: "Inline newsletter signup with double opt-in",
		Tags:        []string{"Forms", "email"},
		Code:        "export function NewsletterSignup() {}",
	}
}

func ids(capsules []*models.Capsule) []string {
	out := make([]string, 0, len(capsules))
	for _, c := range capsules {
		out = append(out, c.ID)
	}
	return out
}

func TestCatalogIncludesBuiltin(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, builtinCount, svc.Catalog().Len())
	assert.Empty(t, svc.Verify())
	assert.NoError(t, svc.VerifyError())

	withoutBuiltin, err := NewService(Options{LibraryDir: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, withoutBuiltin.Catalog().Len())
}

func TestGetCapsule(t *testing.T) {
	svc := newTestService(t)

	c, err := svc.GetCapsule("toggle-switch")
	require.NoError(t, err)
	assert.Equal(t, "builtin:forms", c.Source)

	_, err = svc.GetCapsule("nope")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestCreateCapsuleNormalisesAndPersists(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateCapsule(submission())
	require.NoError(t, err)
	assert.Equal(t, "newsletter-signup", created.ID)
	assert.Equal(t, "Newsletter Signup", created.Name)
	assert.Equal(t, "forms", created.Category)
	assert.Equal(t, []string{"forms", "email"}, created.Tags)
	assert.Equal(t, "web", created.Platform)

	_, err = os.Stat(filepath.Join(svc.LibraryDir(), "capsules", "newsletter-signup.md"))
	require.NoError(t, err)

	got, err := svc.GetCapsule("newsletter-signup")
	require.NoError(t, err)
	assert.Equal(t, LibrarySource, got.Source)
	assert.Equal(t, builtinCount+1, svc.Catalog().Len())

	// a fresh service over the same library sees the capsule
	again, err := NewService(Options{LibraryDir: svc.LibraryDir(), IncludeBuiltin: true})
	require.NoError(t, err)
	assert.True(t, again.Catalog().Has("newsletter-signup"))
}

func TestCreateCapsuleKeepsPorts(t *testing.T) {
	svc := newTestService(t)

	in := submission()
	in.Inputs = []models.Port{{ID: "email", Name: " Email ", Type: "String", Required: true}}
	in.Outputs = []models.Port{{ID: "subscribed", Name: "Subscribed", Type: "event", Description: "<i>fires</i> once"}}

	created, err := svc.CreateCapsule(in)
	require.NoError(t, err)
	assert.Equal(t, []models.Port{{ID: "email", Name: "Email", Type: "string", Required: true}}, created.Inputs)
	assert.Equal(t, []models.Port{{ID: "subscribed", Name: "Subscribed", Type: "event", Description: "fires once"}}, created.Outputs)

	check, err := svc.CheckConnection(ParsePortRef("llm-prompt.response"), ParsePortRef("newsletter-signup.email"))
	require.NoError(t, err)
	assert.Equal(t, "email", check.Input.ID)

	dup := submission()
	dup.ID = "other-signup"
	dup.Outputs = []models.Port{
		{ID: "done", Name: "Done", Type: "event"},
		{ID: "done", Name: "Done again", Type: "hologram"},
	}
	_, err = svc.CreateCapsule(dup)
	require.Error(t, err)
	assert.Len(t, errors.GetAppError(err).Violations, 1)
	assert.Contains(t, errors.GetAppError(err).Violations[0], "outputs.1.type: Invalid enum value.")

	dup.Outputs[1].Type = "event"
	_, err = svc.CreateCapsule(dup)
	require.Error(t, err)
	assert.Equal(t, []string{"outputs: Duplicate port id 'done'"}, errors.GetAppError(err).Violations)
}

func TestSubmitCapsuleTakesValidatedData(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.SubmitCapsule(map[string]interface{}{
		"id":          "ai-summary",
		"name":        "AI Summary",
		"category":    "ai",
		"description": "Summarises text with a model",
		"code":        "export function AISummary() {}",
		"outputs": []interface{}{
			map[string]interface{}{"id": "summary", "name": "Summary", "type": "markdown", "required": false},
		},
	})
	require.NoError(t, err)
	require.Len(t, created.Outputs, 1)
	assert.Equal(t, "markdown", created.Outputs[0].Type)
	assert.True(t, svc.Catalog().Has("ai-summary"))
}

func TestCreateCapsuleRejectsExistingIDs(t *testing.T) {
	svc := newTestService(t)

	dup := submission()
	dup.ID = "toggle-switch"
	_, err := svc.CreateCapsule(dup)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyExists))
	assert.Equal(t, "builtin:forms", errors.GetAppError(err).Context["source"])
}

func TestCreateCapsuleReportsEveryViolation(t *testing.T) {
	svc := newTestService(t)

	bad := submission()
	bad.ID = "Bad ID!"
	bad.Description = "short"
	bad.Code = ""

	_, err := svc.CreateCapsule(bad)
	require.Error(t, err)
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeConstraint, appErr.Code)
	assert.Equal(t, []string{
		"code: Required",
		"description: String must contain at least 10 character(s)",
		"id: Must contain only lowercase letters, digits and hyphens",
	}, appErr.Violations)
}

func TestDeleteCapsule(t *testing.T) {
	svc := newTestService(t)

	err := svc.DeleteCapsule("toggle-switch")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput), "embedded capsules are read-only")

	_, err = svc.CreateCapsule(submission())
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCapsule("newsletter-signup"))
	assert.False(t, svc.Catalog().Has("newsletter-signup"))

	assert.True(t, errors.HasCode(svc.DeleteCapsule("newsletter-signup"), errors.ErrCodeNotFound))
}

func TestSearch(t *testing.T) {
	svc := newTestService(t)

	results := svc.SearchCapsules("player", catalog.Filter{}, 1)
	require.Len(t, results, 1)

	forms := svc.ListCapsules(catalog.Filter{Category: "forms"})
	assert.Len(t, forms, 6)

	found, err := svc.BooleanSearch("audio AND NOT player")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"speech-to-text", "text-to-speech"}, ids(found))

	_, err = svc.BooleanSearch("audio AND")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidExpression))
}

func TestValidateForm(t *testing.T) {
	svc := newTestService(t)

	sub, err := svc.ValidateForm("waitlist", map[string]interface{}{"email": "  Ada@Example.COM "})
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-4000-8000-000000000001", sub.ID)
	assert.Equal(t, "ada@example.com", sub.Data["email"])
	assert.Equal(t, "other", sub.Data["role"])

	_, err = svc.ValidateForm("waitlist", map[string]interface{}{"email": "nope"})
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, []string{"email: Invalid email"}, appErr.Violations)

	_, err = svc.ValidateForm("list_capsules", map[string]interface{}{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeSchemaNotFound), "query schemas are not forms")
}

func TestExportAndVerify(t *testing.T) {
	svc := newTestService(t)
	path := filepath.Join(t.TempDir(), "capsules.json")

	snap, err := svc.ExportToFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, builtinCount, snap.Metadata.TotalCapsules)
	assert.Equal(t, time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC), snap.Metadata.GeneratedAt)
	require.NoError(t, svc.VerifySnapshotFile(path))

	_, err = svc.CreateCapsule(submission())
	require.NoError(t, err)
	err = svc.VerifySnapshotFile(path)
	assert.True(t, errors.HasCode(err, errors.ErrCodeVerificationFailed))

	err = svc.VerifySnapshotFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeFileCorrupted))
}

func TestImport(t *testing.T) {
	svc := newTestService(t)

	imported := submission()
	imported.ID = "hero-banner"

	snap := &models.CatalogSnapshot{Capsules: []*models.Capsule{
		imported,
		{ID: "toggle-switch", Name: "Toggle", Code: "x"},
		{ID: "metadata-only", Name: "No code"},
		{ID: "Bad Id", Code: "x"},
	}}

	result, err := svc.Import(snap, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero-banner"}, result.Imported)
	assert.Len(t, result.Skipped, 3)
	assert.True(t, svc.Catalog().Has("hero-banner"))

	again, err := svc.Import(snap, false)
	require.NoError(t, err)
	assert.Empty(t, again.Imported)
	assert.Equal(t, ImportSkip{ID: "hero-banner", Reason: "already in library"}, again.Skipped[0])

	overwritten, err := svc.Import(snap, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"hero-banner"}, overwritten.Imported)
}

func TestImportKeepsFirstOfRepeatedIDs(t *testing.T) {
	svc := newTestService(t)

	first := submission()
	first.ID = "hero-banner"
	first.Description = "First record"
	second := submission()
	second.ID = "hero-banner"
	second.Description = "Second record"

	for _, overwrite := range []bool{false, true} {
		result, err := svc.Import(&models.CatalogSnapshot{Capsules: []*models.Capsule{first, second}}, overwrite)
		require.NoError(t, err)
		assert.Equal(t, []string{"hero-banner"}, result.Imported)
		assert.Contains(t, result.Skipped, ImportSkip{ID: "hero-banner", Reason: "duplicate id in snapshot"})

		got, err := svc.GetCapsule("hero-banner")
		require.NoError(t, err)
		assert.Equal(t, "First record", got.Description)

		require.NoError(t, svc.DeleteCapsule("hero-banner"))
	}
}

func TestCheckConnection(t *testing.T) {
	svc := newTestService(t)

	check, err := svc.CheckConnection(PortRef{Capsule: "text-to-speech"}, PortRef{Capsule: "speech-to-text", Port: "audio"})
	require.NoError(t, err)
	assert.True(t, check.Compatible)
	assert.Equal(t, "audio", check.From.Port)

	check, err = svc.CheckConnection(PortRef{Capsule: "llm-prompt", Port: "response"}, PortRef{Capsule: "image-viewer"})
	require.NoError(t, err)
	assert.False(t, check.Compatible)
	assert.Equal(t, "Cannot connect markdown output to image input", check.Reason)

	_, err = svc.CheckConnection(PortRef{Capsule: "badge"}, PortRef{Capsule: "image-viewer"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = svc.CheckConnection(PortRef{Capsule: "llm-prompt", Port: "nope"}, PortRef{Capsule: "image-viewer"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestParsePortRef(t *testing.T) {
	assert.Equal(t, PortRef{Capsule: "llm-prompt", Port: "response"}, ParsePortRef("llm-prompt.response"))
	assert.Equal(t, PortRef{Capsule: "image-viewer"}, ParsePortRef(" image-viewer "))
	assert.Equal(t, PortRef{}, ParsePortRef(""))
}

func TestSuggestConnectable(t *testing.T) {
	svc := newTestService(t)

	s, err := svc.SuggestConnectable("Audio")
	require.NoError(t, err)
	assert.Equal(t, []string{"audio-player", "speech-to-text"}, ids(s.Suggested))
	assert.ElementsMatch(t,
		[]string{"audio-player", "speech-to-text", "file-preview", "conditional-branch", "json-viewer"},
		ids(s.Accepting))

	_, err = svc.SuggestConnectable("hologram")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestSavedSearches(t *testing.T) {
	svc := newTestService(t)

	expr, err := models.ParseBooleanExpression("ai AND (audio OR video)")
	require.NoError(t, err)
	require.NoError(t, svc.SaveBooleanSearch(models.SavedSearch{Name: "media", Expression: expr}))

	all, err := svc.ExecuteSavedSearch("media", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"text-to-speech", "audio-player", "speech-to-text", "video-player"}, ids(all))

	narrowed, err := svc.ExecuteSavedSearch("media", "video player")
	require.NoError(t, err)
	require.NotEmpty(t, narrowed)
	assert.Equal(t, "video-player", narrowed[0].ID)

	_, err = svc.ExecuteSavedSearch("missing", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))

	assert.True(t, errors.HasCode(svc.SaveBooleanSearch(models.SavedSearch{Name: " "}), errors.ErrCodeValidation))
	require.NoError(t, svc.DeleteSavedSearch("media"))
}
