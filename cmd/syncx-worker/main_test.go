package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunArgDispatch(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, 0, Run([]string{"syncx-worker", "help"}, &out, &errOut))
	assert.Contains(t, out.String(), "Usage: syncx-worker")

	assert.Equal(t, 2, Run([]string{"syncx-worker", "bogus"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "unknown argument")
}

func TestRunFailsFastOnMissingConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	var out, errOut bytes.Buffer
	assert.Equal(t, 1, Run([]string{"syncx-worker"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "configuration error")
}
