package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return &zapLogger{z: zap.New(zapcore.NewCore(enc, buf, zapcore.DebugLevel))}, buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", "bogus"} {
		l, err := NewLogger(LogConfig{Level: LevelDebug, Format: format, OutputPaths: []string{"stdout"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_EmptyOutputPathsRejected(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestNewLogger_NilOutputPathsDefaultsToStdout(t *testing.T) {
	l, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestConvenienceConstructors(t *testing.T) {
	assert.NotNil(t, NewDefaultLogger())
	assert.NotNil(t, NewDevelopmentLogger())
	assert.NotNil(t, NewNopLogger())
}

func TestNopLogger_ChildrenAreNop(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("x"))
}

func TestZapLogger_WritesTypedFields(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("frame committed",
		String("level", "30"),
		Int("cells", 12),
		Float64("scale", 3.5),
		Bool("level_changed", true),
		Duration("took", 2*time.Millisecond),
		Strings("ids", []string{"a", "b"}),
		SessionID("s-1"),
		Err(errors.New("boom")),
	)

	out := buf.String()
	assert.Contains(t, out, `"msg":"frame committed"`)
	assert.Contains(t, out, `"level":"30"`)
	assert.Contains(t, out, `"cells":12`)
	assert.Contains(t, out, `"scale":3.5`)
	assert.Contains(t, out, `"level_changed":true`)
	assert.Contains(t, out, `"session_id":"s-1"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerFromCore(core).Named("render").With(String("session_id", "abc"))

	l.Warn("level missing, falling back")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "render", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "abc", entries[0].ContextMap()["session_id"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(LevelError))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestErr_Nil(t *testing.T) {
	f := Err(nil)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, "<nil>", f.Value)
}

func TestDefault_SetAndGet(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	l, _ := newTestLogger(t)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}

func TestSetLevel(t *testing.T) {
	buf := &zaptest.Buffer{}
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	root := &zapLogger{z: zap.New(zapcore.NewCore(enc, buf, level)), level: &level}
	child := root.Named("render")

	child.Info("hidden")
	assert.Empty(t, buf.Lines())

	require.True(t, SetLevel(root, LevelDebug))
	child.Debug("shown")
	assert.Len(t, buf.Lines(), 1)

	assert.False(t, SetLevel(NewNopLogger(), LevelDebug))
	l, _ := newTestLogger(t)
	assert.False(t, SetLevel(l, LevelDebug), "no atomic level")
}
