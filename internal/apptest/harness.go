// Package apptest runs the whole application against files written to a
// temporary directory.
package apptest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/livebind/internal/app"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/specialistvlad/livebind/internal/testutil"
	"github.com/stretchr/testify/require"
)

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output    string
	LogOutput string
	Err       error
	App       *app.App
}

// IntegrationConfig describes one integration run. Files maps paths relative
// to a temporary root to their content; the document is Files["index.html"]
// and every file under "libs/" is a declaration library.
type IntegrationConfig struct {
	Files    map[string]string
	Dispatch []string
	Modules  []registry.Module
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, cfg IntegrationConfig) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, cfg)
}

// RunIntegrationTestWithContext provides a standardized harness for running integration
// tests with a specific context provided by the caller.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, cfg IntegrationConfig) *HarnessResult {
	t.Helper()

	// 1. Write all files under a temporary root.
	tmpDir := t.TempDir()
	libsDir := filepath.Join(tmpDir, "libs")
	require.NoError(t, os.Mkdir(libsDir, 0o755))
	for name, content := range cfg.Files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	// 2. Build the configuration the CLI would.
	appConfig := app.Config{
		DocumentPath: filepath.Join(tmpDir, "index.html"),
		LogLevel:     "debug",
		LogFormat:    "text",
		WorkerCount:  4,
	}
	if hasLibraries(cfg.Files) {
		appConfig.ModulesPath = libsDir
	}
	for _, s := range cfg.Dispatch {
		d, err := app.ParseDispatch(s)
		require.NoError(t, err)
		appConfig.Dispatch = append(appConfig.Dispatch, d)
	}
	validated, err := app.NewConfig(appConfig)
	require.NoError(t, err)

	out, logBuffer := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}

	// 3. Construct the app, turning startup panics into errors.
	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(out, logBuffer, validated, cfg.Modules...)
	}()
	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
		}
	}

	// 4. Run to completion.
	runErr := testApp.Run(ctx)

	if os.Getenv("LIVEBIND_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		Output:    out.String(),
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
	}
}

func hasLibraries(files map[string]string) bool {
	for name := range files {
		if strings.HasPrefix(filepath.ToSlash(name), "libs/") {
			return true
		}
	}
	return false
}
