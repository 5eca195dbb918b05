package log

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// Тесты меняют slog.Default(), поэтому без t.Parallel().

func newSilent() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestFrom_ReturnsDefault_WhenNoLoggerInContext —
// если логгер не положен в контекст, From возвращает текущий slog.Default().
func TestFrom_ReturnsDefault_WhenNoLoggerInContext(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	got := From(context.Background())
	require.Equal(t, def, got, "From должен вернуть slog.Default(), если в контексте ничего нет")
}

// TestIntoAndFrom_RoundTrip —
// Into кладёт логгер в контекст, From извлекает его 1:1.
func TestIntoAndFrom_RoundTrip(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	def := newSilent()
	slog.SetDefault(def)

	l := newSilent()
	ctx := Into(context.Background(), l)

	require.Equal(t, l, From(ctx))
	require.Equal(t, def, From(context.Background()))
}

// TestFrom_ReturnsDefault_WhenStoredValueIsWrongTypeOrNil —
// From устойчив к «мусорным» значениям по нашему ключу и к *slog.Logger(nil).
func TestFrom_ReturnsDefault_WhenStoredValueIsWrongTypeOrNil(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })
	def := newSilent()
	slog.SetDefault(def)

	// 1) в контексте лежит значение "не того типа" под тем же ключом.
	ctxWrong := context.WithValue(context.Background(), ctxKey{}, "not-a-logger")
	got := From(ctxWrong)
	require.Equal(t, def, got, "Ожидаем slog.Default() при неверном типе значения")

	// 2) в контексте лежит *slog.Logger == nil.
	var nilLogger *slog.Logger
	ctxNil := context.WithValue(context.Background(), ctxKey{}, nilLogger)
	got = From(ctxNil)
	require.Equal(t, def, got, "Ожидаем slog.Default() при nil-логгере")
}

// TestInto_ShadowParentLogger —
// дочерний контекст может «перекрыть» логгер родителя, не влияя на него.
func TestInto_ShadowParentLogger(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	parentL := newSilent()
	childL := newSilent()

	// parent имеет parentL.
	parent := Into(context.Background(), parentL)
	require.Equal(t, parentL, From(parent))

	// child «перекрывает» логгер родителя.
	child := Into(parent, childL)
	require.Equal(t, childL, From(child))

	// parent остался прежним.
	require.Equal(t, parentL, From(parent))
}

// TestWith_AddsAttrsToContextLogger —
// With обогащает логгер контекста, не трогая родительский.
func TestWith_AddsAttrsToContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	parent := Into(context.Background(), base)
	child := With(parent, slog.String("request_id", "rid-1"))

	From(child).Info("child_event")
	require.Contains(t, buf.String(), `"request_id":"rid-1"`)

	buf.Reset()
	From(parent).Info("parent_event")
	require.NotContains(t, buf.String(), "request_id")
}
