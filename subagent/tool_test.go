package subagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolArgs(t *testing.T) {
	args, err := ParseToolArgs(`{"agent_id":" researcher ","task":"find sources"}`)
	require.NoError(t, err)
	assert.Equal(t, "researcher", args.AgentID)
	msgs := args.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "find sources", msgs[0].Text())

	for _, bad := range []string{`{`, `{"task":"x"}`, `{"agent_id":"a","task":"  "}`} {
		_, err := ParseToolArgs(bad)
		assert.Error(t, err, bad)
	}
}

func TestToolDefinition(t *testing.T) {
	def := ToolDefinition()
	assert.Equal(t, ToolName, def.Name)
	assert.Equal(t, []string{"agent_id", "task"}, def.Parameters["required"])
}
