package system

import (
	"testing"

	"github.com/specialistvlad/livebind/internal/apptest"
	"github.com/stretchr/testify/require"
)

// Test for: the env_vars module exports the filtered process environment to
// nested declarations.
func TestNativeModules_EnvVars(t *testing.T) {
	t.Setenv("LIVEBIND_SYSTEM_GREETING", "howdy")
	t.Setenv("LIVEBIND_SYSTEM_NAME", "ada")

	doc := `<div id="env">
<script context="env_vars">
prefix       = "LIVEBIND_SYSTEM_"
strip_prefix = true
</script>
<div id="app">
<script context>message = "${env.GREETING}, ${env.NAME}"</script>
<p id="out" bind-text="message"></p>
</div>
</div>`

	result := apptest.RunIntegrationTest(t, apptest.IntegrationConfig{
		Files: map[string]string{"index.html": doc},
	})

	require.NoError(t, result.Err)
	require.Contains(t, result.Output, `<p id="out" bind-text="message">howdy, ada</p>`)
}

// Test for: the console module's printer logs dispatched events.
func TestNativeModules_ConsolePrinter(t *testing.T) {
	doc := `<div id="app">
<script context="console">
prefix = "ui"
level  = "warn"
</script>
<button id="save" bind-on="click:log">Save</button>
</div>`

	result := apptest.RunIntegrationTest(t, apptest.IntegrationConfig{
		Files:    map[string]string{"index.html": doc},
		Dispatch: []string{"click@save"},
	})

	require.NoError(t, result.Err)
	require.Contains(t, result.LogOutput, `level=WARN msg="ui click"`)
	require.Contains(t, result.LogOutput, "target=body>div#app>button#save")
}

// Test for: invalid native module input is a load failure of that provider.
func TestNativeModules_InvalidInput(t *testing.T) {
	doc := `<div id="app">
<script context="console">level = "loud"</script>
<button id="b" bind-on="click:log"></button>
</div>`

	result := apptest.RunIntegrationTest(t, apptest.IntegrationConfig{
		Files: map[string]string{"index.html": doc},
	})

	require.NoError(t, result.Err)
	require.Contains(t, result.LogOutput, "kind=module_load_failure")
	require.Contains(t, result.LogOutput, `invalid level \"loud\"`)
	require.Contains(t, result.LogOutput, "kind=unresolved_reference")
}
