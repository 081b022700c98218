package competitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/config"
	"brandpulse/internal/service/normalize"
)

func newDetector(t *testing.T) *Detector {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	return NewDetector(catalog, DefaultContextWindow)
}

func tokens(text string) []string {
	return normalize.New().Normalize(text).Tokens
}

func TestDetectSingleCompetitor(t *testing.T) {
	d := newDetector(t)

	matches := d.Detect(tokens("Compared to Zenefits, Gusto is easier"))

	require.Len(t, matches, 1)
	assert.Equal(t, "Zenefits", matches[0].Competitor)
	assert.Equal(t, "zenefits", matches[0].Alias)
	assert.Equal(t, "compared to zenefits gusto is easier", matches[0].Context)

	rows := Mentions("post-1", matches, 0.42)
	require.Len(t, rows, 1)
	assert.Equal(t, "post-1", rows[0].PostID)
	assert.Equal(t, 0.42, rows[0].Score)
}

func TestDetectMultipleCompetitorsSortedByName(t *testing.T) {
	d := newDetector(t)

	matches := d.Detect(tokens("We left ADP Workforce for Rippling, then looked at ADP again and QuickBooks Payroll"))

	require.Len(t, matches, 3)
	assert.Equal(t, "ADP", matches[0].Competitor)
	assert.Equal(t, "adp workforce", matches[0].Alias)
	assert.Equal(t, "QuickBooks", matches[1].Competitor)
	assert.Equal(t, "quickbooks payroll", matches[1].Alias)
	assert.Equal(t, "Rippling", matches[2].Competitor)
}

func TestDetectRespectsWordBoundaries(t *testing.T) {
	d := newDetector(t)
	assert.Empty(t, d.Detect(tokens("adpro dealers love the rippled design of the deeler app")))
	assert.Empty(t, d.Detect(nil))
}

func TestContextWindowIsBounded(t *testing.T) {
	d := newDetector(t)
	matches := d.Detect(tokens("one two three four five six seven eight nine ten paychex eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen"))
	require.Len(t, matches, 1)
	assert.Equal(t, "three four five six seven eight nine ten paychex eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen", matches[0].Context)
}
