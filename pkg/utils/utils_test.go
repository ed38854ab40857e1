package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrySend(t *testing.T) {
	ch := make(chan int, 1)
	assert.True(t, TrySend(ch, 1))
	assert.False(t, TrySend(ch, 2))
	assert.Equal(t, 1, <-ch)
	assert.True(t, TrySend(ch, 3))
}

type closer struct {
	calls int
	err   error
}

func (c *closer) Close() error {
	c.calls++
	return c.err
}

func TestCloseQuietly(t *testing.T) {
	c := &closer{err: errors.New("already closed")}
	CloseQuietly(c, "test closer")
	assert.Equal(t, 1, c.calls)

	CloseQuietly(nil, "nothing")
}
