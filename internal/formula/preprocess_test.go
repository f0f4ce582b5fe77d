package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellflow/cellflow/internal/value"
)

func TestPreprocess_PlainLiteral(t *testing.T) {
	got := Preprocess("  hello world ")
	assert.Equal(t, "hello world", got.Text)
	assert.False(t, got.IsFormula)
	assert.Nil(t, got.Vars)
}

func TestPreprocess_FormulaWithoutURLs(t *testing.T) {
	got := Preprocess("=a + b")
	assert.Equal(t, "=a + b", got.Text)
	assert.True(t, got.IsFormula)
	assert.Nil(t, got.Vars)
}

func TestPreprocess_RewritesURLs(t *testing.T) {
	got := Preprocess("=external_ref(https://example.com/rate) + 1")
	assert.Equal(t, "=external_ref(url_var_0) + 1", got.Text)
	assert.True(t, got.IsFormula)
	assert.Equal(t, map[string]value.Value{
		"url_var_0": value.String("https://example.com/rate"),
	}, got.Vars)
}

func TestPreprocess_RepeatedURLCollapses(t *testing.T) {
	got := Preprocess("=external_ref(https://a.example/x) + external_ref(https://a.example/x)")
	assert.Equal(t, "=external_ref(url_var_0) + external_ref(url_var_0)", got.Text)
	assert.Len(t, got.Vars, 1)
}

func TestPreprocess_DistinctURLsInOrder(t *testing.T) {
	got := Preprocess("=external_ref(https://b.example/y) - external_ref(https://a.example/x)")
	assert.Equal(t, "=external_ref(url_var_0) - external_ref(url_var_1)", got.Text)
	assert.Equal(t, value.String("https://b.example/y"), got.Vars["url_var_0"])
	assert.Equal(t, value.String("https://a.example/x"), got.Vars["url_var_1"])
}

func TestPreprocess_RewrittenFormulaParses(t *testing.T) {
	got := Preprocess("=external_ref(https://example.com/rate) * 2")
	node, err := Parse(got.Text[1:])
	assert.NoError(t, err)
	assert.Equal(t, []string{"url_var_0"}, FindExternalRefs(node))
}
