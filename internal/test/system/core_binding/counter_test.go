package system

import (
	"testing"

	"github.com/specialistvlad/livebind/internal/apptest"
	"github.com/stretchr/testify/require"
)

const counterDocument = `<!DOCTYPE html>
<html><body>
<div id="app">
<script context>
cell "count" { initial = 0 }
handler "increment" {
  set = { count = count + 1 }
  log = "increment from ${event.target.path}"
}
label = "Clicks"
</script>
<h1 id="title" bind-text="label"></h1>
<button id="inc" bind-on="click:increment">+</button>
<span id="out" bind-text="count"></span>
</div>
</body></html>`

// Test for: a cell updated by dispatched events re-renders its bound text.
func TestCoreBinding_CounterFollowsDispatchedClicks(t *testing.T) {
	// --- Arrange & Act ---
	result := apptest.RunIntegrationTest(t, apptest.IntegrationConfig{
		Files:    map[string]string{"index.html": counterDocument},
		Dispatch: []string{"click@inc", "click@inc", "click@inc"},
	})

	// --- Assert ---
	require.NoError(t, result.Err)
	require.Contains(t, result.Output, `<h1 id="title" bind-text="label">Clicks</h1>`)
	require.Contains(t, result.Output, `<span id="out" bind-text="count">3</span>`)
	require.Contains(t, result.LogOutput, "increment from body>div#app>button#inc")
	require.Contains(t, result.LogOutput, "providers=1 bindings=3 diagnostics=0 dispatched=3")
}

// Test for: without dispatches the document renders its initial state.
func TestCoreBinding_InitialRender(t *testing.T) {
	result := apptest.RunIntegrationTest(t, apptest.IntegrationConfig{
		Files: map[string]string{"index.html": counterDocument},
	})

	require.NoError(t, result.Err)
	require.Contains(t, result.Output, `<span id="out" bind-text="count">0</span>`)
	require.Contains(t, result.LogOutput, "Document bound.")
}
