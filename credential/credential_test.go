package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemManagedClassification(t *testing.T) {
	assert.True(t, IsSystemManaged(TypeOpenAI))
	assert.True(t, IsSystemManaged(TypeGemini))
	assert.True(t, IsSystemManaged(TypeAnthropic))
	assert.False(t, IsSystemManaged(TypeSlack))
	assert.False(t, IsSystemManaged(TypeFirecrawl))
}

func TestOptionalClassification(t *testing.T) {
	assert.True(t, IsOptional(TypeDatabase))
	assert.False(t, IsOptional(TypeSlack))
	assert.False(t, IsOptional(TypeOpenAI))
}

func TestUnknownTagsDefaultToUserRequired(t *testing.T) {
	unknown := Type("SOME_FUTURE_CRED")
	assert.False(t, IsSystemManaged(unknown))
	assert.False(t, IsOptional(unknown))
	assert.True(t, RequiresSelection(unknown))
}

func TestRequiresSelection(t *testing.T) {
	assert.True(t, RequiresSelection(TypeSlack))
	assert.True(t, RequiresSelection(TypeFirecrawl))
	assert.False(t, RequiresSelection(TypeOpenAI))
	assert.False(t, RequiresSelection(TypeDatabase))
}
