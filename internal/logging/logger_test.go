package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		"":        INFO,
		"warning": WARN,
		" error ": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, "уровень %q должен разбираться", in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err, "неизвестный уровень должен давать ошибку")
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	prev := currentOptions()
	Configure(Options{Dir: dir, ConsoleLevel: ERROR, FileLevel: DEBUG})
	defer Configure(prev)

	logger, err := NewLogger("zone")
	require.NoError(t, err)

	logger.Debug("зона %d загружена", 7)
	logger.Trace("не должно попасть в файл")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "zone.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] [zone] зона 7 загружена")
	assert.NotContains(t, string(data), "не должно попасть")
}

func TestLoggerManager_ReusesComponentLoggers(t *testing.T) {
	lm := NewLoggerManager()

	a, err := lm.GetLogger("streaming")
	require.NoError(t, err)
	b, err := lm.GetLogger("streaming")
	require.NoError(t, err)

	assert.Same(t, a, b, "логгер компонента должен кешироваться")
	assert.Equal(t, []string{"streaming"}, lm.ListComponents())
	assert.NoError(t, lm.SetLogLevel("streaming", WARN, WARN))
	assert.Error(t, lm.SetLogLevel("missing", WARN, WARN))
	assert.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
