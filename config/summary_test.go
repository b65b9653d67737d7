package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	cfg, err := Parse([]byte(`
subscribers:
  - name: audit
    key: user
  - name: sessions
    key: session
steps:
  - save:user=a
  - save:cart=b
  - get:user
  - remove:cart
  - flush
`))
	require.NoError(t, err)

	s := Summarize(cfg)

	assert.Equal(t, 2, s.Subscribers)
	assert.Equal(t, 5, s.Steps)
	assert.Equal(t, map[string]int{"save": 2, "get": 1, "remove": 1, "flush": 1}, s.Ops)
	assert.Equal(t, []string{"cart", "session", "user"}, s.Keys)
	assert.Equal(t, []string{"flush", "get", "remove", "save"}, s.OpNames())
}

func TestSummarize_NoKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
steps:
  - list
  - reset
`))
	require.NoError(t, err)

	s := Summarize(cfg)
	assert.Empty(t, s.Keys)
	assert.Equal(t, 0, s.Subscribers)
}
