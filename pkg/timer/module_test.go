package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFires(t *testing.T) {
	fired := make(chan bool, 1)
	timer := AfterFunc(10*time.Millisecond, func() {
		fired <- true
	})

	require.Equal(t, 10*time.Millisecond, timer.TimeLeft())
	require.True(t, timer.Start())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	require.Equal(t, time.Duration(0), timer.TimeLeft())
	// Already expired; neither starting nor stopping does anything.
	require.False(t, timer.Start())
	require.False(t, timer.Stop())
}

func TestTimerStop(t *testing.T) {
	fired := make(chan bool, 1)
	timer := AfterFunc(50*time.Millisecond, func() {
		fired <- true
	})

	require.True(t, timer.Start())
	require.True(t, timer.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNilTimeLeft(t *testing.T) {
	var timer *Timer
	require.Equal(t, time.Duration(0), timer.TimeLeft())
}
