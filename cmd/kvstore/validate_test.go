package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidate_ValidScript(t *testing.T) {
	path := writeScript(t, `
title: Session demo
flush_timeout: 2s
subscribers:
  - name: audit
    key: user
steps:
  - save:user=samuel jackson
  - save:session=abc
  - flush
  - remove:user
`)

	output, err := executeCmd(t, "validate", "-c", path)
	require.NoError(t, err)

	for _, phrase := range []string{
		"Script is valid!",
		"Title:         Session demo",
		"Flush timeout: 2s",
		"Subscribers:   1",
		"Steps:         4 (flush=1, remove=1, save=2)",
		"Keys:          session, user",
	} {
		assert.Contains(t, output, phrase)
	}
}

func TestRunValidate_InvalidScript(t *testing.T) {
	path := writeScript(t, `
subscribers:
  - name: ""
    key: user
steps:
  - list
`)

	_, err := executeCmd(t, "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRunValidate_UnknownSubscriber(t *testing.T) {
	path := writeScript(t, `
steps:
  - unsubscribe:ghost
`)

	_, err := executeCmd(t, "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown subscriber "ghost"`)
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/script.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
