package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLockAcquireRelease(t *testing.T) {
	lock := NewJobLock()
	a := &Worker{}
	b := &Worker{}

	require.True(t, lock.Acquire(a), "expected first acquire to succeed")
	assert.False(t, lock.Acquire(b), "expected second acquire to fail while held")
	assert.Equal(t, a, lock.Holder())
	assert.False(t, lock.Release(b), "expected release by non-holder to fail")
	require.True(t, lock.Release(a), "expected release by holder to succeed")
	assert.Nil(t, lock.Holder())
	assert.True(t, lock.Acquire(b), "expected b to acquire the now-free lock")
}

func TestJobLockForceRelease(t *testing.T) {
	lock := NewJobLock()
	a := &Worker{}

	lock.Acquire(a)
	lock.ForceRelease(&Worker{})
	assert.Equal(t, a, lock.Holder(), "force release by non-holder must not clear the lock")

	lock.ForceRelease(a)
	assert.Nil(t, lock.Holder(), "force release by the holder must clear the lock")
}
