package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter_Pattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %msg %field", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "link down",
		Data:    logrus.Fields{"port": 2, "iface": "sw0"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [warning] link down iface=sw0,port=2", string(out))
}

func TestFormatter_LiteralPercentAndNoCaller(t *testing.T) {
	f := &formatter{pattern: "100% %caller %func|%msg%field", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Message: "ok", Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "100% - -|ok", string(out))
}

func TestFormatter_GoroutineID(t *testing.T) {
	f := &formatter{pattern: "%goroutine", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.NotEqual(t, "unknown", string(out))
	assert.NotEmpty(t, string(out))
}

func TestMultiWriter_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(&b)

	n, err := w.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())
	assert.Equal(t, 2, w.Len())
}

func TestGetLogger_BeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
}

func TestInit_FileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swctl.log")
	err := Init(&LoggerConfig{
		Level:   "debug",
		Pattern: "[%level] %msg %field\n",
		Appenders: []AppenderConfig{
			{Type: "file", Options: map[string]interface{}{"filename": path, "max_size": "10"}},
		},
	})
	require.NoError(t, err)
	t.Cleanup(Close)

	l := GetLogger()
	assert.True(t, l.IsDebugEnabled())
	l.WithField("port", 3).Debug("state changed")
	l.WithError(os.ErrClosed).Error("flush")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[debug] state changed port=3", lines[0])
	assert.Contains(t, lines[1], "[error] flush error=")
}

func TestInit_Errors(t *testing.T) {
	err := Init(&LoggerConfig{Appenders: []AppenderConfig{{Type: "syslog"}}})
	assert.ErrorContains(t, err, "unknown appender")

	err = Init(&LoggerConfig{Appenders: []AppenderConfig{{Type: "file"}}})
	assert.ErrorContains(t, err, "requires filename")
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(&LoggerConfig{Level: "chatty"}))
	t.Cleanup(Close)
	assert.False(t, GetLogger().IsDebugEnabled())
}
