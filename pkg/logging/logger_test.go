package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIDStable(t *testing.T) {
	a := SessionID()
	b := SessionID()
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestNewAndClose(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	l, err := New("test")
	require.NotNil(t, l)
	if err != nil {
		t.Skipf("file logging unavailable: %v", err)
	}

	l.Infof("hello %s", "world")
	l.Errorf("boom")
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "close is idempotent")
}
