package cmd

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toggleRecorder struct {
	calls int
	errs  []error
}

func (r *toggleRecorder) toggle(context.Context) error {
	r.calls++
	if len(r.errs) >= r.calls {
		return r.errs[r.calls-1]
	}
	return nil
}

func runWait(t *testing.T, rec *toggleRecorder, toggled <-chan bool, sigCh <-chan os.Signal) error {
	t.Helper()
	result := make(chan error, 1)
	go func() { result <- waitForDownload(context.Background(), rec.toggle, toggled, sigCh) }()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("waitForDownload did not return")
		return nil
	}
}

func TestWaitForDownloadStartFailure(t *testing.T) {
	rec := &toggleRecorder{errs: []error{errors.New("controller stopped")}}
	// nothing is ever sent on toggled, so a wait here would hang
	err := runWait(t, rec, make(chan bool), make(chan os.Signal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not start download")
	assert.Equal(t, 1, rec.calls)
}

func TestWaitForDownloadEndsWhenToggleClears(t *testing.T) {
	rec := &toggleRecorder{}
	toggled := make(chan bool, 2)
	toggled <- true
	toggled <- false
	assert.NoError(t, runWait(t, rec, toggled, make(chan os.Signal)))
	assert.Equal(t, 1, rec.calls)
}

func TestWaitForDownloadInterruptCancels(t *testing.T) {
	rec := &toggleRecorder{}
	toggled := make(chan bool, 1)
	sigCh := make(chan os.Signal, 1)
	sigCh <- syscall.SIGTERM
	go func() {
		time.Sleep(50 * time.Millisecond)
		toggled <- false
	}()
	assert.NoError(t, runWait(t, rec, toggled, sigCh))
	assert.Equal(t, 2, rec.calls)
}

func TestWaitForDownloadCancelFailure(t *testing.T) {
	rec := &toggleRecorder{errs: []error{nil, errors.New("controller stopped")}}
	sigCh := make(chan os.Signal, 1)
	sigCh <- os.Interrupt
	err := runWait(t, rec, make(chan bool), sigCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not cancel download")
	assert.Equal(t, 2, rec.calls)
}
