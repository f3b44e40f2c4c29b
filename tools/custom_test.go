package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/aicode/framework"
)

const sampleManifest = `
tools:
  - name: git_log
    description: Shows recent commits.
    command: git log --oneline -n {count}
    danger: safe
    params:
      - name: count
        type: int
        default: "10"
  - name: deploy
    description: Deploys the site.
    command: ./deploy.sh {env}
    params:
      - name: env
        type: string
        required: true
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadToolManifest(t *testing.T) {
	manifest, err := LoadToolManifest(writeManifest(t, sampleManifest))
	require.NoError(t, err)
	require.Len(t, manifest.Tools, 2)
	assert.Equal(t, "git_log", manifest.Tools[0].Name)
	assert.Equal(t, "10", manifest.Tools[0].Params[0].Default)
}

func TestLoadToolManifestMissingFileIsEmpty(t *testing.T) {
	manifest, err := LoadToolManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, manifest.Tools)
}

func TestLoadToolManifestValidation(t *testing.T) {
	cases := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "missing command",
			manifest: "tools:\n  - name: broken\n",
			wantErr:  "missing command",
		},
		{
			name:     "bad name",
			manifest: "tools:\n  - name: Bad-Name\n    command: ls\n",
			wantErr:  "must match",
		},
		{
			name:     "duplicate",
			manifest: "tools:\n  - name: a\n    command: ls\n  - name: a\n    command: ls\n",
			wantErr:  "duplicate",
		},
		{
			name:     "undeclared placeholder",
			manifest: "tools:\n  - name: a\n    command: echo {thing}\n",
			wantErr:  "undeclared parameter",
		},
		{
			name:     "bad danger",
			manifest: "tools:\n  - name: a\n    command: ls\n    danger: spicy\n",
			wantErr:  "danger must be",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadToolManifest(writeManifest(t, tc.manifest))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCustomToolSubstitutesQuotedArguments(t *testing.T) {
	policy := testPolicy(t)
	runner := &fakeRunner{}
	tool := &CustomTool{
		Spec: CustomToolSpec{
			Name:    "greet",
			Command: "echo {name}",
			Params:  []CustomParamSpec{{Name: "name", Required: true}},
		},
		Policy: policy,
		Runner: runner,
	}

	_, err := tool.Execute(context.Background(), map[string]string{"name": "world; touch /tmp/pwned"})
	require.NoError(t, err)
	require.Len(t, runner.requests, 1)
	assert.Equal(t, `echo 'world; touch /tmp/pwned'`, runner.requests[0].Command)
}

func TestCustomToolQuotesEmbeddedQuotes(t *testing.T) {
	policy := testPolicy(t)
	runner := &fakeRunner{}
	tool := &CustomTool{
		Spec: CustomToolSpec{
			Name:    "say",
			Command: "echo {msg}",
			Params:  []CustomParamSpec{{Name: "msg"}},
		},
		Policy: policy,
		Runner: runner,
	}

	_, err := tool.Execute(context.Background(), map[string]string{"msg": "it's fine"})
	require.NoError(t, err)
	require.Len(t, runner.requests, 1)
	assert.Equal(t, `echo 'it'\''s fine'`, runner.requests[0].Command)
}

func TestCustomToolAssembledCommandStillDenied(t *testing.T) {
	policy := testPolicy(t)
	runner := &fakeRunner{}
	tool := &CustomTool{
		Spec: CustomToolSpec{
			Name:    "nuke",
			Command: "rm -rf / {target}",
			Params:  []CustomParamSpec{{Name: "target"}},
		},
		Policy: policy,
		Runner: runner,
	}

	_, err := tool.Execute(context.Background(), map[string]string{"target": "now"})
	require.Error(t, err)
	assert.Equal(t, framework.FailureCommandBlocked, kindOf(t, err))
	assert.Empty(t, runner.requests)
}

func TestCustomToolMissingTemplateParameter(t *testing.T) {
	tool := &CustomTool{
		Spec: CustomToolSpec{
			Name:    "needs",
			Command: "cat {file}",
			Params:  []CustomParamSpec{{Name: "file"}},
		},
		Policy: testPolicy(t),
		Runner: &fakeRunner{},
	}

	_, err := tool.Execute(context.Background(), map[string]string{})
	require.Error(t, err)
	assert.Equal(t, framework.FailureInvalidArguments, kindOf(t, err))
}

func TestCustomToolDangerDefaultsToConfirm(t *testing.T) {
	confirm := &CustomTool{Spec: CustomToolSpec{Name: "a", Command: "ls"}}
	assert.Equal(t, framework.DangerConfirm, confirm.Danger())

	safe := &CustomTool{Spec: CustomToolSpec{Name: "b", Command: "ls", Danger: "safe"}}
	assert.Equal(t, framework.DangerSafe, safe.Danger())
}

func TestRegisterCustomToolsSkipsBuiltinCollisions(t *testing.T) {
	policy := testPolicy(t)
	reg := framework.NewRegistry()
	require.NoError(t, reg.Register(&ReadFileTool{Policy: policy}))

	manifest := &ToolManifest{Tools: []CustomToolSpec{
		{Name: "read_file", Command: "cat {f}", Params: []CustomParamSpec{{Name: "f"}}},
		{Name: "git_status", Command: "git status"},
	}}
	skipped, err := RegisterCustomTools(reg, manifest, policy, &fakeRunner{}, policy.Root, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"read_file"}, skipped)
	_, ok := reg.Get("git_status")
	assert.True(t, ok)
}
