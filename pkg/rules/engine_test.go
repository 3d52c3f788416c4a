package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func idsOf(rules []*models.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	writeRuleFile(t, dir, "general.md", fallbackRule)
	writeRuleFile(t, dir, "bluetooth.md", bluetoothRule)
	writeRuleFile(t, dir, "timestamp.md", timestampDriftRule)
	writeRuleFile(t, dir, "battery.md", `---
id: battery-drain
name: Battery Drain
version: 1
enabled: true
triggers:
  keywords: [battery drains fast, battery life]
  priority: 10
---
# Battery Drain

Check power-management logs.
`)

	cat := NewCatalog(dir, nil)
	require.NoError(t, cat.Reload())
	return cat
}

func TestSelectMatchesKeywordAndIncludesDependencyChain(t *testing.T) {
	cat := newTestCatalog(t)

	sel, err := Select(cat, "Bluetooth pairing failed twice this morning")
	require.NoError(t, err)
	require.Equal(t, "bluetooth-pairing", sel.Primary.ID)

	ids := make([]string, len(sel.Chain))
	for i, r := range sel.Chain {
		ids[i] = r.ID
	}
	// dependency first, primary last
	assert.Equal(t, []string{"timestamp-drift", "bluetooth-pairing"}, ids)
}

func TestSelectFallsBackWhenNoKeywordMatches(t *testing.T) {
	cat := newTestCatalog(t)

	sel, err := Select(cat, "the device makes a strange noise when charging")
	require.NoError(t, err)
	assert.Equal(t, "general-triage", sel.Primary.ID)
	assert.Equal(t, []string{"general-triage"}, idsOf(sel.Chain))
}

func TestSelectBreaksTiesByPriorityThenID(t *testing.T) {
	cat := newTestCatalog(t)

	// Matches both bluetooth-pairing (priority 10) and battery-drain
	// (priority 10) — tie broken by id ascending ("battery-drain" < "bluetooth-pairing").
	sel, err := Select(cat, "pairing failed and also battery life is terrible")
	require.NoError(t, err)
	assert.Equal(t, "battery-drain", sel.Primary.ID)

	// chain must carry the union of every matched rule's closure, not just
	// primary's: bluetooth-pairing and its own dependency (timestamp-drift)
	// must survive even though battery-drain won the tie-break.
	assert.Equal(t, []string{"timestamp-drift", "bluetooth-pairing", "battery-drain"}, idsOf(sel.Chain))
}

func TestSelectIsNFKCNormalizedAcrossScripts(t *testing.T) {
	cat := newTestCatalog(t)
	// full-width ASCII variant of "bluetooth" normalizes to the same
	// lowercase halfwidth form under NFKC.
	sel, err := Select(cat, "Ｂｌｕｅｔｏｏｔｈ will not connect")
	require.NoError(t, err)
	assert.Equal(t, "bluetooth-pairing", sel.Primary.ID)
}
