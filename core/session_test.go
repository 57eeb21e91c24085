package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_AppendAndHistory(t *testing.T) {
	s := NewSession("agent:main:main", "main")
	s.Append(UserText("hi"), AssistantText("hello"))

	h := s.History()
	assert.Len(t, h, 2)
	assert.Equal(t, 2, s.Len())

	h[0].Parts[0] = TextPart{Text: "mutated"}
	assert.Equal(t, "hi", s.History()[0].Text())
}

func TestSession_Replace(t *testing.T) {
	s := NewSession("k", "a")
	s.Append(UserText("1"), AssistantText("2"), UserText("3"))
	before := s.Updated

	s.Replace([]Content{UserText("3")})

	assert.Equal(t, 1, s.Len())
	assert.False(t, s.Updated.Before(before))
}

func TestSession_Clone(t *testing.T) {
	s := NewSession("k", "a")
	s.Append(UserText("x"))

	c := s.Clone()
	c.Append(UserText("y"))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, s.Key, c.Key)
}
