package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/domain/templatepacks"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

func callSettingsConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			ExtractionMethod: llm.MethodResponseSchema,
			TimeoutSeconds:   120,
			BatchSizeChars:   0,
		},
	}
}

func TestResolveCallSettingsServerDefaults(t *testing.T) {
	settings := ResolveCallSettings(nil, nil, callSettingsConfig())

	assert.Equal(t, llm.MethodResponseSchema, settings.Method)
	assert.Equal(t, 120000, settings.TimeoutMs)
	assert.Equal(t, 0, settings.BatchSizeChars)
}

func TestResolveCallSettingsPrecedence(t *testing.T) {
	projectMethod := llm.MethodFunctionCalling
	projectTimeout := 60
	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{
			Method:         &projectMethod,
			TimeoutSeconds: &projectTimeout,
		},
	}

	jobTimeout := 30
	jobBatch := 50000
	overrides := &JobOverrides{
		TimeoutSeconds: &jobTimeout,
		BatchSizeChars: &jobBatch,
	}

	settings := ResolveCallSettings(overrides, project, callSettingsConfig())

	// Method comes from the project, timeout from the job, batch from the job.
	assert.Equal(t, llm.MethodFunctionCalling, settings.Method)
	assert.Equal(t, 30000, settings.TimeoutMs)
	assert.Equal(t, 50000, settings.BatchSizeChars)
}

func TestResolveAllowedTypesFallsBackToSchemas(t *testing.T) {
	schemas := &templatepacks.ExtractionSchemas{
		ObjectSchemas: map[string]llm.ObjectSchema{
			"Place":  {Name: "Place"},
			"Person": {Name: "Person"},
		},
	}

	assert.Equal(t, []string{"Person", "Place"}, ResolveAllowedTypes(nil, nil, schemas))

	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{AllowedTypes: []string{"Place"}},
	}
	assert.Equal(t, []string{"Place"}, ResolveAllowedTypes(nil, project, schemas))

	overrides := &JobOverrides{AllowedTypes: []string{"Person"}}
	assert.Equal(t, []string{"Person"}, ResolveAllowedTypes(overrides, project, schemas))
}

func TestResolveBasePrompt(t *testing.T) {
	assert.Equal(t, "store prompt", ResolveBasePrompt(nil, "store prompt"))

	custom := "project prompt"
	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{BasePrompt: &custom},
	}
	assert.Equal(t, "project prompt", ResolveBasePrompt(project, "store prompt"))
}
