package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundTaskRun(t *testing.T) {
	value := 7
	got, err := NewBackgroundTaskNoError(nil, func() *int { return &value }).Run()
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	_, err = NewBackgroundTask(nil, func() (*int, error) { return nil, errors.New("bus error") }).Run()
	assert.ErrorContains(t, err, "bus error")
}

func TestBackgroundTaskRecover(t *testing.T) {
	got, err := NewBackgroundTaskNoError(nil, func() *string {
		panic("register map changed")
	}).Recover(func(err error) string {
		return "recovered"
	}).Run()
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)

	// nil results are failures too
	got, err = NewBackgroundTaskNoError(nil, func() *string { return nil }).Recover(func(err error) string {
		return "empty"
	}).Run()
	require.NoError(t, err)
	assert.Equal(t, "empty", got)
}

func TestBackgroundTaskTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := NewBackgroundTaskNoError(nil, func() *int {
		<-release
		v := 1
		return &v
	}).WithTimeout(50 * time.Millisecond).Run()
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
