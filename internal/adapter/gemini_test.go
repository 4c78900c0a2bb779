package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGemini_InitCapturesSession(t *testing.T) {
	a := NewGemini()
	ev, sid := a.ParseLine(`{"type":"init","sessionId":"g-7"}`)
	require.NotNil(t, ev)
	assert.Equal(t, "Session started", ev.Message)
	assert.Equal(t, "g-7", sid)
}

func TestGemini_AssistantMessage(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"message","role":"assistant","content":"Checking the tests"}`)
	require.NotNil(t, ev)
	assert.Equal(t, KindOutput, ev.Kind)
	assert.Equal(t, "Checking the tests", ev.Message)
}

func TestGemini_UserMessageSuppressed(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"message","role":"user","content":"fix bug"}`)
	assert.Nil(t, ev)
}

func TestGemini_ToolCall(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"tool_call","name":"write_file","args":{"path":"x.go"}}`)
	require.NotNil(t, ev)
	assert.Equal(t, KindToolAction, ev.Kind)
	assert.Equal(t, "Writing file: x.go", ev.Message)
}

func TestGemini_Result(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"result","result":"done"}`)
	require.NotNil(t, ev)
	assert.Equal(t, KindResult, ev.Kind)
	assert.Equal(t, "done", ev.Message)
}

func TestGemini_ErrorField(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"message","error":"quota exceeded"}`)
	require.NotNil(t, ev)
	assert.True(t, ev.Err)
	assert.Equal(t, "quota exceeded", ev.Message)
}

func TestGemini_FreeTextCandidateFields(t *testing.T) {
	a := NewGemini()
	ev, _ := a.ParseLine(`{"type":"progress","status":"compiling"}`)
	require.NotNil(t, ev)
	assert.Equal(t, KindInfo, ev.Kind)
	assert.Equal(t, "compiling", ev.Message)
}
