package nodes

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-graph/core"
)

func TestRetrieveFormatsDocuments(t *testing.T) {
	mem := newMemory(t, "User's name is Shibin", "User likes spicy food", "User lives in Munich")
	node := Retrieve(mem)

	u, err := node(context.Background(), state(core.UserTurn("What is my name?")))
	require.NoError(t, err)

	info := u[KeyRetrievedInfo].(string)
	lines := strings.Split(info, "\n")
	require.NotEmpty(t, lines)
	assert.LessOrEqual(t, len(lines), 4)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "Document: "), line)
	}
	assert.Equal(t, "Document: User's name is Shibin", lines[0])
}

func TestRetrieveIsIdempotent(t *testing.T) {
	mem := newMemory(t, "User's sister lives in Berlin", "User is allergic to peanuts", "User drives a blue car")
	node := Retrieve(mem)
	s := state(core.UserTurn("where does my sister live"))

	first, err := node(context.Background(), s)
	require.NoError(t, err)
	second, err := node(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRetrieveDegradesToEmpty(t *testing.T) {
	node := Retrieve(&fakeMemory{searchErr: assert.AnError})
	u, err := node(context.Background(), state(core.UserTurn("hi")))
	require.NoError(t, err)
	assert.Equal(t, "", u[KeyRetrievedInfo])

	u, err = Retrieve(newMemory(t))(context.Background(), state())
	require.NoError(t, err)
	assert.Equal(t, "", u[KeyRetrievedInfo])
}
