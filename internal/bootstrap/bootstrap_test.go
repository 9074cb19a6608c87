package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditx/internal/config"
)

func openEnv(t *testing.T, cfg config.Config) *Env {
	t.Helper()
	cfg.DBPath = filepath.Join(t.TempDir(), "auditx.db")
	env, err := Open(cfg, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestRAGWithoutBackends(t *testing.T) {
	env := openEnv(t, config.Config{LLMProvider: "azure", SearchTopK: 3})
	assert.Nil(t, env.SearchClient())

	resp := env.RAG(context.Background()).Query(context.Background(), "anything", nil)
	assert.True(t, resp.Error)

	queries, err := env.DB.ListRAGQueries("", 10)
	require.NoError(t, err)
	assert.Len(t, queries, 1)
}

func TestFetchServiceUnknownProvider(t *testing.T) {
	env := openEnv(t, config.Config{IntakeProvider: "pop3"})
	_, err := env.FetchService(context.Background())
	assert.Error(t, err)

	assert.NotNil(t, env.Listener(context.Background()))
}

func TestDashboardLoadsWorkflowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflows:\n  - name: Azure Security Specialization\n"), 0o644))

	env := openEnv(t, config.Config{WorkflowTemplatesFile: path})
	store, err := env.Dashboard()
	require.NoError(t, err)
	assert.Len(t, store.Snapshot().Workflows, 3)
}
