package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/becomeliminal/nim-graph/core"
)

func TestNewTurn_CopiesMetadata(t *testing.T) {
	meta := map[string]string{"source": "search"}
	turn := core.NewTurn(core.RoleAssistant, "hi", meta)
	meta["source"] = "changed"
	assert.Equal(t, "search", turn.Metadata["source"])
}

func TestErrorTurn(t *testing.T) {
	turn := core.ErrorTurn(errors.New("boom"))
	assert.Equal(t, core.RoleAssistant, turn.Role)
	assert.Equal(t, "Error: boom", turn.Content)
	assert.True(t, turn.IsError())
	assert.False(t, core.AssistantTurn("fine").IsError())
}

func TestLastOfRole(t *testing.T) {
	turns := []core.Turn{
		core.SystemTurn("sys"),
		core.UserTurn("first"),
		core.AssistantTurn("answer"),
		core.UserTurn("second"),
	}
	u, ok := core.LastOfRole(turns, core.RoleUser)
	assert.True(t, ok)
	assert.Equal(t, "second", u.Content)

	_, ok = core.LastOfRole(turns[:1], core.RoleUser)
	assert.False(t, ok)
}

func TestErrorTypesUnwrap(t *testing.T) {
	base := errors.New("rate limited")
	var lme *core.LanguageModelError
	err := error(&core.LanguageModelError{Op: "invoke", Err: base})
	assert.True(t, errors.As(err, &lme))
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, &core.ToolInvocationError{Tool: "x", Err: base}, base)
	assert.ErrorIs(t, &core.MemoryStoreError{Op: "add", Err: base}, base)
	assert.Equal(t, "configuration: llm.api_key: required", (&core.ConfigurationError{Field: "llm.api_key", Reason: "required"}).Error())
}
