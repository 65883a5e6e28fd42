package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/config"
)

func TestDefaultRegistryCatalog(t *testing.T) {
	r := DefaultRegistry()
	all := r.All()
	require.Len(t, all, 5)

	names := make([]string, 0, len(all))
	for _, d := range all {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"auditor", "docweaver", "guardrail", "splitter", "tidy"}, names)

	for _, d := range all {
		assert.True(t, d.Enabled, "built-in %s should start enabled", d.Name)
		assert.NotNil(t, d.Worker)
		if d.ProviderBound {
			assert.NotEmpty(t, d.Provider, "provider-bound %s needs a provider", d.Name)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	err := r.Register(Descriptor{Name: "", Worker: tidyWorker{}})
	require.Error(t, err)

	err = r.Register(Descriptor{Name: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "implementation")

	err = r.Register(Descriptor{Name: "remote", ProviderBound: true, Worker: tidyWorker{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")

	require.NoError(t, r.Register(Descriptor{Name: "tidy", Worker: tidyWorker{}}))
	err = r.Register(Descriptor{Name: "tidy", Worker: tidyWorker{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestApplyConfigOverrides(t *testing.T) {
	r := DefaultRegistry()
	off := false
	r.ApplyConfig(map[string]config.WorkerConf{
		"splitter": {Enabled: &off},
		"tidy": {CostModel: &config.CostModelConfig{
			Base: 9, PerLine: 1,
		}},
		"nonexistent": {Enabled: &off},
	})

	d, ok := r.Get("splitter")
	require.True(t, ok)
	assert.False(t, d.Enabled)

	d, ok = r.Get("tidy")
	require.True(t, ok)
	assert.Equal(t, 9.0, d.CostModel.Base)
	assert.Equal(t, 1.0, d.CostModel.PerLine)

	enabled := r.Enabled()
	for _, e := range enabled {
		assert.NotEqual(t, "splitter", e.Name)
	}
	assert.Len(t, enabled, 4)
}

func TestCostModelEstimate(t *testing.T) {
	cm := CostModel{Base: 10, PerLine: 0.1, PerCallable: 1, CriticalBonus: 50}

	simple := classify.Classification{Lines: 100, Callables: 2, Tier: classify.TierSimple}
	assert.InDelta(t, 22.0, cm.Estimate(simple), 1e-9)

	complexFile := classify.Classification{Lines: 100, Callables: 2, Tier: classify.TierComplex}
	assert.InDelta(t, 33.0, cm.Estimate(complexFile), 1e-9)

	critical := classify.Classification{Lines: 100, Callables: 2, Tier: classify.TierCritical}
	assert.InDelta(t, 94.0, cm.Estimate(critical), 1e-9)
}

func TestTidyNormalizesWhitespace(t *testing.T) {
	in := "func a() {}   \n\n\n\n\nfunc b() {}\t\n\n\n"
	resp, err := tidyWorker{}.Invoke(context.Background(), Request{Content: []byte(in)})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, "func a() {}\n\n\nfunc b() {}\n", string(resp.NewContent))

	again, err := tidyWorker{}.Invoke(context.Background(), Request{Content: resp.NewContent})
	require.NoError(t, err)
	assert.Equal(t, string(resp.NewContent), string(again.NewContent), "tidy should be idempotent")
	assert.Contains(t, again.Warnings, "already tidy")
}

func TestAuditorFlagsProblems(t *testing.T) {
	in := "short line\n" + strings.Repeat("x", 130) + "\nconsole.log(\"debug\")\n"
	resp, err := auditorWorker{}.Invoke(context.Background(), Request{Content: []byte(in)})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, in, string(resp.NewContent), "auditor must not mutate content")
	require.Len(t, resp.Warnings, 2)
	assert.Contains(t, resp.Warnings[0], "line 2")
	assert.Contains(t, resp.Warnings[1], "debug marker")
	assert.Zero(t, resp.ActualCost)
}

func TestDocweaverAddsStubs(t *testing.T) {
	in := "// documented already\nfunc a() {\n}\n\nfunc b() {\n}\n"
	resp, err := docweaverWorker{}.Invoke(context.Background(), Request{
		Content:        []byte(in),
		Classification: classify.Classification{Lines: 6, Callables: 2},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	out := string(resp.NewContent)
	assert.Equal(t, 1, strings.Count(out, "TODO(docweaver)"), "only the undocumented callable gets a stub")
	assert.Greater(t, resp.ActualCost, 0.0)
}

func TestSplitterMarksLongCallables(t *testing.T) {
	var b strings.Builder
	b.WriteString("func long() {\n")
	for i := 0; i < 60; i++ {
		b.WriteString("\twork()\n")
	}
	b.WriteString("}\n")
	b.WriteString("func short() {\n\twork()\n}\n")

	resp, err := splitterWorker{}.Invoke(context.Background(), Request{Content: []byte(b.String())})
	require.NoError(t, err)
	require.True(t, resp.Success)
	out := strings.Split(string(resp.NewContent), "\n")
	assert.Contains(t, out[0], "extraction candidate")
	assert.Equal(t, 1, strings.Count(string(resp.NewContent), "extraction candidate"))
}

func TestGuardrailFindsSecurityIssues(t *testing.T) {
	in := "password = \"hunter2\"\nquery := \"SELECT * FROM t WHERE id=\" + id\nok := true\n"
	resp, err := guardrailWorker{}.Invoke(context.Background(), Request{Content: []byte(in)})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, in, string(resp.NewContent), "guardrail is read-only")
	require.Len(t, resp.Warnings, 2)
	assert.Contains(t, resp.Warnings[0], "credential")
	assert.Contains(t, resp.Warnings[1], "concatenation")
}
