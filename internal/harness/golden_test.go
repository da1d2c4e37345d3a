package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs the scenarios shipped in testdata/scenarios and
// compares their traces against testdata/golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	for _, name := range []string{
		"widget_lifecycle",
		"merge_object_wins",
		"delete_all_batched",
		"failed_work",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join("..", "..", "testdata", "scenarios", name+".yaml")
			scenario, err := LoadScenario(path)
			require.NoError(t, err, "failed to load scenario from %s", path)
			assert.Equal(t, name, scenario.Name, "scenario name mismatch")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace(t *testing.T) {
	n := 2
	data, err := MarshalTrace("sample", []TraceEvent{
		{Step: 0, Op: OpInsert, Ref: "Widget#id-0001", Outcome: OutcomeOK, Seq: 1},
		{Step: 1, Op: OpFind, Outcome: OutcomeOK, Seq: 1, IDs: []string{"Widget#id-0001", "Widget#id-0002"}, Count: &n},
	})
	require.NoError(t, err)

	want := `{"scenario":"sample","steps":2}
{"step":0,"op":"insert","ref":"Widget#id-0001","outcome":"ok","seq":1}
{"step":1,"op":"find","outcome":"ok","seq":1,"ids":["Widget#id-0001","Widget#id-0002"],"count":2}
`
	assert.Equal(t, want, string(data))
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("..", "..", "testdata", "scenarios", "delete_all_batched.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := MarshalTrace(scenario.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(scenario.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
