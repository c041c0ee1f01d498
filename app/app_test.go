/*
 * Copyright (c) 2019 Wren IM project contributors.
 * See the LICENSE file for more information.
 */

package app

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wren-im/wren/version"
)

type writerBuffer struct {
	mu  sync.RWMutex
	buf *bytes.Buffer
}

func newWriterBuffer() *writerBuffer {
	return &writerBuffer{buf: bytes.NewBuffer(nil)}
}

func (wb *writerBuffer) Write(p []byte) (int, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.buf.Write(p)
}

func (wb *writerBuffer) String() string {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	return wb.buf.String()
}

func TestApplicationEmptyArgs(t *testing.T) {
	require.NotNil(t, New(nil, nil).Run())
}

func TestApplicationShowUsage(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./wren", "-h"}).Run()
	require.Nil(t, err)
	require.Equal(t, expectedUsageString(), w.String())
}

func TestApplicationPrintVersion(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./wren", "--version"}).Run()
	require.Nil(t, err)
	require.Equal(t, fmt.Sprintf("wren version: %v\n", version.ApplicationVersion), w.String())
}

func TestApplicationBadConfig(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./wren", "--config=non-existing.yml"}).Run()
	require.NotNil(t, err)
}

func TestApplicationRun(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "wren.pid")

	cfgFile := filepath.Join(dir, "wren.yml")
	cfg := fmt.Sprintf(`
pid_path: %s
logger:
  level: error
storage:
  type: memory
auth:
  secret: s3cr3t
c2s:
  domain: localhost
  port: 0
`, pidPath)
	require.Nil(t, ioutil.WriteFile(cfgFile, []byte(cfg), 0644))

	ap := New(newWriterBuffer(), []string{"./wren", "--config=" + cfgFile})
	ap.shutDownWaitSecs = time.Duration(2) * time.Second
	go func() {
		time.Sleep(time.Millisecond * 500) // wait until initialized
		ap.waitStopCh <- syscall.SIGTERM
	}()
	require.Nil(t, ap.Run())

	// make sure pid file had been created
	_, err := os.Stat(pidPath)
	require.False(t, os.IsNotExist(err))
}

func expectedUsageString() string {
	var r string
	for i := range logoStr {
		r += fmt.Sprintf("%s\n", logoStr[i])
	}
	r += fmt.Sprintf("%s\n", usageStr)
	return r
}
