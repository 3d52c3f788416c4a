package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const fallbackRule = `---
id: general-triage
name: General Triage
version: 1
enabled: true
triggers:
  keywords: []
  priority: 0
---
# General Triage

Investigate the logs for anything unusual.
`

const bluetoothRule = `---
id: bluetooth-pairing
name: Bluetooth Pairing Failure
version: 1
enabled: true
triggers:
  keywords:
    - bluetooth
    - pairing failed
  priority: 10
depends_on: [timestamp-drift]
---
# Bluetooth Pairing Failure

Check the pairing handshake logs.
`

const timestampDriftRule = `---
id: timestamp-drift
name: Timestamp Drift
version: 1
enabled: true
triggers:
  keywords: []
  priority: 1
---
# Timestamp Drift

Not a fallback rule despite empty keywords being otherwise eligible; excluded
from fallback selection by having a non-default priority in this fixture.
`

func TestCatalogReloadAndSelectFallback(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "general.md", fallbackRule)
	writeRuleFile(t, dir, "bluetooth.md", bluetoothRule)
	writeRuleFile(t, dir, "timestamp.md", timestampDriftRule)

	cat := NewCatalog(dir, nil)
	require.NoError(t, cat.Reload())

	assert.Len(t, cat.Snapshot(), 3)

	fb, err := cat.Fallback()
	require.NoError(t, err)
	assert.Equal(t, "general-triage", fb.ID)

	r, ok := cat.Get("bluetooth-pairing")
	require.True(t, ok)
	assert.Equal(t, []string{"timestamp-drift"}, r.DependsOn)
}

func TestCatalogRejectsUnknownDependency(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "general.md", fallbackRule)
	writeRuleFile(t, dir, "bluetooth.md", bluetoothRule) // depends_on timestamp-drift, never written

	cat := NewCatalog(dir, nil)
	err := cat.Reload()
	require.Error(t, err)
}

func TestCatalogRejectsDependencyCycle(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "general.md", fallbackRule)
	writeRuleFile(t, dir, "a.md", `---
id: a
enabled: true
triggers:
  keywords: [a]
  priority: 1
depends_on: [b]
---
body a
`)
	writeRuleFile(t, dir, "b.md", `---
id: b
enabled: true
triggers:
  keywords: [b]
  priority: 1
depends_on: [a]
---
body b
`)

	cat := NewCatalog(dir, nil)
	err := cat.Reload()
	require.Error(t, err)
}

func TestCatalogSkipsInvalidFileButKeepsRest(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "general.md", fallbackRule)
	writeRuleFile(t, dir, "broken.md", "no header delimiters here")

	cat := NewCatalog(dir, nil)
	require.NoError(t, cat.Reload())
	assert.Len(t, cat.Snapshot(), 1)
}

func TestCatalogRequiresFallback(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "bluetooth.md", `---
id: bluetooth-pairing
enabled: true
triggers:
  keywords: [bluetooth]
  priority: 10
---
body
`)

	cat := NewCatalog(dir, nil)
	err := cat.Reload()
	require.Error(t, err)
}
