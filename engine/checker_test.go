package flowengine

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubblelab/bubbleflow/credential"
	"github.com/bubblelab/bubbleflow/flowstore"
	"github.com/bubblelab/bubbleflow/metric"
	"github.com/bubblelab/bubbleflow/runstate"
)

func newTestChecker() (*Checker, *runstate.Store) {
	states := runstate.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewChecker(states, logger, nil), states
}

func schemaRequiring(fields ...string) json.RawMessage {
	schema := map[string]any{
		"type":     "object",
		"required": fields,
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return raw
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestValidateInputsNoFlowSelected(t *testing.T) {
	checker, _ := newTestChecker()

	result := checker.ValidateInputs("", nil, map[string]any{})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"No flow selected"}, result.Reasons)

	result = checker.ValidateInputs("flow-1", nil, map[string]any{})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"No flow selected"}, result.Reasons)
}

func TestValidateInputsMissingFieldsInOrder(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("a", "b", "c")}

	result := checker.ValidateInputs("flow-1", flow, map[string]any{"a": "x"})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{
		"Missing required input: b",
		"Missing required input: c",
	}, result.Reasons)
}

func TestValidateInputsEmptyStringCountsAsMissing(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("a")}

	result := checker.ValidateInputs("flow-1", flow, map[string]any{"a": ""})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"Missing required input: a"}, result.Reasons)
}

func TestValidateInputsFailOpenOnMalformedSchema(t *testing.T) {
	checker, _ := newTestChecker()

	tests := []struct {
		name   string
		schema json.RawMessage
	}{
		{"string form with invalid payload", json.RawMessage(`"{not valid json"`)},
		{"no schema", nil},
		{"json null", json.RawMessage(`null`)},
		{"non-object schema", json.RawMessage(`[1,2,3]`)},
		{"required not an array", json.RawMessage(`{"required": "a"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &flowstore.Flow{ID: "flow-1", InputSchema: tt.schema}
			result := checker.ValidateInputs("flow-1", flow, map[string]any{})
			assert.True(t, result.IsValid)
			assert.Empty(t, result.Reasons)
		})
	}
}

func TestValidateInputsStringSchemaForm(t *testing.T) {
	checker, _ := newTestChecker()

	// The schema arrives as a JSON string wrapping the serialized object.
	wrapped, err := json.Marshal(`{"required":["url"]}`)
	require.NoError(t, err)

	flow := &flowstore.Flow{ID: "flow-1", InputSchema: wrapped}
	result := checker.ValidateInputs("flow-1", flow, map[string]any{})
	assert.Equal(t, []string{"Missing required input: url"}, result.Reasons)
}

func TestValidateInputsStripsFlattenedKeys(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("items")}

	// Flattened widget keys are UI artifacts, not values for the
	// canonical field.
	result := checker.ValidateInputs("flow-1", flow, map[string]any{
		"items[0].name": "first",
		"items[1].name": "second",
	})
	assert.Equal(t, []string{"Missing required input: items"}, result.Reasons)

	result = checker.ValidateInputs("flow-1", flow, map[string]any{
		"items":         []any{map[string]any{"name": "first"}},
		"items[0].name": "first",
	})
	assert.True(t, result.IsValid)
}

func TestValidateInputsReadsLiveState(t *testing.T) {
	checker, states := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("url")}

	result := checker.ValidateInputs("flow-1", flow, nil)
	assert.False(t, result.IsValid)

	states.Get("flow-1").SetInput("url", "https://example.com")
	result = checker.ValidateInputs("flow-1", flow, nil)
	assert.True(t, result.IsValid)
}

func TestValidateCredentialsCloneSkipsOriginal(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"1": {credential.TypeSlack},
			"2": {credential.TypeSlack},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"1": {VariableID: int64Ptr(1), BubbleName: "Notifier"},
			"2": {
				VariableID:            int64Ptr(2),
				BubbleName:            "Notifier",
				InvocationCallSiteKey: "site:42",
				ClonedFromVariableID:  int64Ptr(1),
			},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, map[string]map[credential.Type]int64{})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{"Missing SLACK_CRED for Notifier (site:42)"}, result.Reasons,
		"only the clone is reported, never the template it was cloned from")
	assert.Equal(t, "2", result.BubbleVariableID)
}

func TestValidateCredentialsOriginalWithoutClones(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeSlack},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"5": {VariableID: int64Ptr(5), BubbleName: "Notifier"},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, nil)
	assert.Equal(t, []string{"Missing SLACK_CRED for Notifier"}, result.Reasons)
	assert.Equal(t, "5", result.BubbleVariableID)
}

func TestValidateCredentialsSystemManagedAndOptionalExempt(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeOpenAI, credential.TypeDatabase, credential.TypeSlack},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"5": {VariableID: int64Ptr(5), BubbleName: "Agent"},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, nil)
	assert.Equal(t, []string{"Missing SLACK_CRED for Agent"}, result.Reasons,
		"system-managed and optional types are never reported")
}

func TestValidateCredentialsSatisfiedSelection(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeSlack},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"5": {VariableID: int64Ptr(5), BubbleName: "Notifier"},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, map[string]map[credential.Type]int64{
		"5": {credential.TypeSlack: 17},
	})
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Reasons)
	assert.Empty(t, result.BubbleVariableID)
}

func TestValidateCredentialsFirstOffenderPointer(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"3": {credential.TypeSlack},
			"7": {credential.TypeGitHub},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"7": {VariableID: int64Ptr(7), BubbleName: "Committer"},
			"3": {VariableID: int64Ptr(3), BubbleName: "Notifier"},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, nil)
	assert.Equal(t, []string{
		"Missing SLACK_CRED for Notifier",
		"Missing GITHUB_CRED for Committer",
	}, result.Reasons)
	assert.Equal(t, "3", result.BubbleVariableID,
		"pointer names the first bubble in iteration order")
}

func TestValidateCredentialsSkipsNilVariableID(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID: "flow-1",
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeSlack},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"bad": {BubbleName: "Broken"},
			"5":   {VariableID: int64Ptr(5), BubbleName: "Notifier"},
		},
	}

	result := checker.ValidateCredentials("flow-1", flow, nil)
	assert.Equal(t, []string{"Missing SLACK_CRED for Notifier"}, result.Reasons)
}

func TestValidateFlowAggregationOrder(t *testing.T) {
	checker, states := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("url")}

	states.Get("flow-1").SetRunning(true)

	result := checker.ValidateFlow("flow-1", flow, Options{CheckRunning: true})
	require.False(t, result.IsValid)
	assert.Equal(t, "Already executing", result.Reasons[0],
		"transient state surfaces before missing inputs")
	assert.Equal(t, []string{
		"Already executing",
		"Missing required input: url",
	}, result.Reasons)
}

func TestValidateFlowCurrentlyValidating(t *testing.T) {
	checker, states := newTestChecker()
	flow := &flowstore.Flow{ID: "flow-1"}

	states.Get("flow-1").SetValidating(true)

	result := checker.ValidateFlow("flow-1", flow, Options{CheckValidating: true})
	assert.Equal(t, []string{"Currently validating"}, result.Reasons)

	// Flags are only consulted when requested.
	result = checker.ValidateFlow("flow-1", flow, Options{})
	assert.True(t, result.IsValid)
}

func TestValidateFlowScenario(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID:          "flow-1",
		InputSchema: schemaRequiring("url"),
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeFirecrawl},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"5": {VariableID: int64Ptr(5), BubbleName: "Scraper"},
		},
	}

	result := checker.ValidateFlow("flow-1", flow, Options{
		Inputs:      map[string]any{},
		Credentials: map[string]map[credential.Type]int64{},
	})
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{
		"Missing required input: url",
		"Missing FIRECRAWL_API_KEY for Scraper",
	}, result.Reasons)
	assert.Equal(t, "5", result.BubbleVariableID)
}

func TestValidateFlowReady(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID:          "flow-1",
		InputSchema: schemaRequiring("url"),
		RequiredCredentials: map[string][]credential.Type{
			"5": {credential.TypeFirecrawl},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"5": {VariableID: int64Ptr(5), BubbleName: "Scraper"},
		},
	}

	result := checker.ValidateFlow("flow-1", flow, Options{
		Inputs:       map[string]any{"url": "https://example.com"},
		Credentials:  map[string]map[credential.Type]int64{"5": {credential.TypeFirecrawl: 3}},
		CheckRunning: true,
	})
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Reasons)
}

func TestValidationDeterminism(t *testing.T) {
	checker, _ := newTestChecker()
	flow := &flowstore.Flow{
		ID:          "flow-1",
		InputSchema: schemaRequiring("a", "b"),
		RequiredCredentials: map[string][]credential.Type{
			"1": {credential.TypeSlack},
			"2": {credential.TypeGitHub},
		},
		BubbleParameters: map[string]flowstore.BubbleParameter{
			"1": {VariableID: int64Ptr(1), BubbleName: "Notifier"},
			"2": {VariableID: int64Ptr(2), BubbleName: "Committer"},
		},
	}
	opts := Options{Inputs: map[string]any{"a": "x"}, Credentials: map[string]map[credential.Type]int64{}}

	first := checker.ValidateFlow("flow-1", flow, opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, checker.ValidateFlow("flow-1", flow, opts))
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Result: ValidationResult{
		Reasons: []string{"Missing required input: url", "Already executing"},
	}}
	assert.Equal(t, "flow not ready: Missing required input: url; Already executing", err.Error())
}

func TestCheckerRecordsValidationMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	states := runstate.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checker := NewChecker(states, logger, registry)

	checker.ValidateFlow("", nil, Options{})

	flow := &flowstore.Flow{ID: "flow-1", InputSchema: schemaRequiring("url")}
	checker.ValidateFlow("flow-1", flow, Options{
		Inputs:      map[string]any{"url": "https://example.com"},
		Credentials: map[string]map[credential.Type]int64{},
	})

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.ValidationsTotal.WithLabelValues("flow", "invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.ValidationsTotal.WithLabelValues("flow", "valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.ValidationReasons.WithLabelValues("selection")))
	assert.Positive(t, testutil.CollectAndCount(core.ValidationDuration))
}
