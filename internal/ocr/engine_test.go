package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/hudreader/internal/digits"
	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

// fakeBackend reads the text from a lookup keyed by crop width, so each
// test region can be told apart by its size.
type fakeBackend struct {
	mu      sync.Mutex
	byWidth map[int]Recognition
	failOn  map[int]bool
	err     error
	calls   [][]int
	closed  atomic.Bool
}

func (f *fakeBackend) Recognize(_ context.Context, crops []image.Image) ([]Recognition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	widths := make([]int, len(crops))
	out := make([]Recognition, len(crops))
	for i, c := range crops {
		w := c.Bounds().Dx()
		widths[i] = w
		if f.failOn[w] {
			return nil, errors.New("backend exploded")
		}
		out[i] = f.byWidth[w]
	}
	f.calls = append(f.calls, widths)
	if f.err != nil {
		return nil, f.err
	}
	return out, nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

// rects returns regions of width 10, 11, 12, ... stacked vertically.
func rects(n int) []image.Rectangle {
	out := make([]image.Rectangle, n)
	for i := range out {
		out[i] = image.Rect(0, i*5, 10+i, i*5+4)
	}
	return out
}

func blank() *image.RGBA { return image.NewRGBA(image.Rect(0, 0, 64, 64)) }

func strs(ss []ShortString) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.String()
	}
	return out
}

func TestAcceptProperty(t *testing.T) {
	f := func(s string) bool {
		got, ok := Accept(s)
		if !ok {
			return got.IsEmpty()
		}
		return IsDigitsOrSlash(got.String())
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestAccept(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"123", "123", true},
		{"95/200", "95/200", true},
		{" 42\n", "42", true},
		{"", "", false},
		{"   ", "", false},
		{"12a", "", false},
		{"1 2", "", false},
		{"-3", "", false},
		{"１２", "", false},
		{"1234567890", "12345678", true},
	}
	for _, tt := range tests {
		got, ok := Accept(tt.in)
		assert.Equal(t, tt.ok, ok, "Accept(%q)", tt.in)
		assert.Equal(t, tt.want, got.String(), "Accept(%q)", tt.in)
	}
}

func TestShortStringJSON(t *testing.T) {
	s, truncated := NewShortString("150/200")
	require.False(t, truncated)

	b, err := json.Marshal([]ShortString{s, {}})
	require.NoError(t, err)
	assert.JSONEq(t, `["150/200",""]`, string(b))

	var back []ShortString
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []string{"150/200", ""}, strs(back))
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"batch": KindNeuralBatch, "Parallel": KindNeuralParallel, "template": KindTemplateMatch, "": KindNone,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("paddle")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfigInvalid))
}

func TestNeuralBatchChunksAndFilters(t *testing.T) {
	fb := &fakeBackend{byWidth: map[int]Recognition{
		10: {Text: "120/200"},
		11: {Text: "abc"},
		12: {Text: " 7 "},
		14: {Text: "31"},
		16: {Text: ""},
	}}
	e := NewNeuralBatch(fb, 3)
	rs := rects(7)
	rs[5] = image.Rectangle{} // unreadable region is skipped, not sent

	got, err := e.Recognize(context.Background(), blank(), rs)
	require.NoError(t, err)
	assert.Equal(t, []string{"120/200", "", "7", "", "31", "", ""}, strs(got))
	assert.Equal(t, [][]int{{10, 11, 12}, {13, 14, 16}}, fb.calls)
}

func TestNeuralBatchBackendError(t *testing.T) {
	fb := &fakeBackend{err: errors.New("session lost")}
	_, err := NewNeuralBatch(fb, 8).Recognize(context.Background(), blank(), rects(2))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEngineFailed))
}

func TestNeuralParallelScoreThreshold(t *testing.T) {
	fb := &fakeBackend{byWidth: map[int]Recognition{
		10: {Text: "5", Score: 0.9},
		11: {Text: "6", Score: 0.5},
		12: {Text: "7", Score: 0.51},
		13: {Text: "x", Score: 0.99},
	}}
	e := NewNeuralParallel([]Backend{fb, fb}, 0.5)

	got, err := e.Recognize(context.Background(), blank(), rects(4))
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "", "7", ""}, strs(got))
	assert.Len(t, fb.calls, 4)
}

func TestNeuralParallelPartialFailure(t *testing.T) {
	fb := &fakeBackend{
		byWidth: map[int]Recognition{10: {Text: "1", Score: 1}, 12: {Text: "3", Score: 1}},
		failOn:  map[int]bool{11: true},
	}
	got, err := NewNeuralParallel([]Backend{fb}, 0.5).Recognize(context.Background(), blank(), rects(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "", "3"}, strs(got))
}

func TestNeuralParallelTotalFailure(t *testing.T) {
	fb := &fakeBackend{failOn: map[int]bool{10: true, 11: true}}
	_, err := NewNeuralParallel([]Backend{fb}, 0.5).Recognize(context.Background(), blank(), rects(2))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEngineFailed))
}

func TestNeuralParallelWithoutBackends(t *testing.T) {
	done := make(chan error, 1)
	go func() {
		_, err := NewNeuralParallel(nil, 0.5).Recognize(context.Background(), blank(), rects(2))
		done <- err
	}()
	select {
	case err := <-done:
		assert.True(t, apperrors.IsCode(err, apperrors.CodeEngineFailed), "err = %v", err)
	case <-time.After(time.Second):
		t.Fatal("Recognize hung with an empty backend pool")
	}
}

func TestFallbackOnlyFillsEmptyRegions(t *testing.T) {
	primary := &fakeBackend{byWidth: map[int]Recognition{10: {Text: "1"}, 12: {Text: "3"}}}
	secondary := &fakeBackend{byWidth: map[int]Recognition{
		10: {Text: "9", Score: 1}, 11: {Text: "2", Score: 1}, 12: {Text: "9", Score: 1},
	}}
	e := WithFallback(NewNeuralBatch(primary, 8), NewNeuralParallel([]Backend{secondary}, 0.5))

	got, err := e.Recognize(context.Background(), blank(), rects(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, strs(got))
	assert.Equal(t, [][]int{{11}}, secondary.calls)
	assert.Equal(t, "batch+parallel", e.String())

	require.NoError(t, e.Close())
	assert.True(t, primary.closed.Load())
	assert.True(t, secondary.closed.Load())
}

func TestFallbackKeepsPrimaryWhenSecondaryFails(t *testing.T) {
	primary := &fakeBackend{byWidth: map[int]Recognition{10: {Text: "1"}}}
	secondary := &fakeBackend{err: errors.New("down")}
	e := WithFallback(NewNeuralBatch(primary, 8), NewNeuralBatch(secondary, 8))

	got, err := e.Recognize(context.Background(), blank(), rects(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", ""}, strs(got))
}

func TestFallbackSkippedWhenAllRead(t *testing.T) {
	primary := &fakeBackend{byWidth: map[int]Recognition{10: {Text: "1"}}}
	secondary := &fakeBackend{}
	e := WithFallback(NewNeuralBatch(primary, 8), NewNeuralBatch(secondary, 8))

	_, err := e.Recognize(context.Background(), blank(), rects(1))
	require.NoError(t, err)
	assert.Empty(t, secondary.calls)
}

// glyph is a deterministic two-level 8x10 pattern.
func glyph(seed uint64) *image.Gray {
	rng := rand.New(rand.NewPCG(seed, seed*7+1))
	g := image.NewGray(image.Rect(0, 0, 8, 10))
	for i := range g.Pix {
		g.Pix[i] = uint8(40 + 180*rng.IntN(2))
	}
	return g
}

func TestTemplateMatchEngine(t *testing.T) {
	var ts []digits.Template
	for i, sym := range []byte("0123456789/") {
		ts = append(ts, digits.Template{Symbol: sym, Name: string(sym), Img: glyph(uint64(i + 1))})
	}
	img := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for i := range img.Pix {
		img.Pix[i] = 40
		if i%4 == 3 {
			img.Pix[i] = 255
		}
	}
	paint := func(sym byte, ox, oy int) {
		g := ts[strings.IndexByte("0123456789/", sym)].Img
		for y := 0; y < 10; y++ {
			for x := 0; x < 8; x++ {
				v := g.GrayAt(x, y).Y
				img.SetRGBA(ox+x, oy+y, color.RGBA{v, v, v, 255})
			}
		}
	}
	paint('4', 2, 2)
	paint('2', 14, 2)

	e := NewTemplateMatch(digits.NewMatcher(ts, digits.DefaultConfig()))
	got, err := e.Recognize(context.Background(), img, []image.Rectangle{
		image.Rect(0, 0, 40, 14),
		image.Rect(0, 20, 40, 34),
		{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "", ""}, strs(got))
}

func TestTemplateMatchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewTemplateMatch(digits.NewMatcher(nil, digits.DefaultConfig()))
	_, err := e.Recognize(ctx, blank(), rects(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFailures(t *testing.T) {
	_, err := New(Config{Kind: KindTemplateMatch, TemplateDir: t.TempDir()}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTemplateLoad), "err = %v", err)

	_, err = New(Config{Kind: KindNeuralBatch}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEngineInit), "err = %v", err)

	_, err = New(Config{Kind: KindNeuralBatch}, func() (Backend, error) { return nil, errors.New("no model") })
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEngineInit), "err = %v", err)

	_, err = New(Config{Kind: KindNeuralBatch, Fallback: KindNeuralBatch}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfigInvalid), "err = %v", err)
}

func TestNewParallelClosesOpenedOnFailure(t *testing.T) {
	var opened []*fakeBackend
	factory := func() (Backend, error) {
		if len(opened) == 2 {
			return nil, errors.New("out of memory")
		}
		b := &fakeBackend{}
		opened = append(opened, b)
		return b, nil
	}
	_, err := New(Config{Kind: KindNeuralParallel, Workers: 4}, factory)
	require.Error(t, err)
	for _, b := range opened {
		assert.True(t, b.closed.Load())
	}
}

func TestNewWithFallback(t *testing.T) {
	factory := func() (Backend, error) { return &fakeBackend{}, nil }
	e, err := New(Config{Kind: KindNeuralBatch, Fallback: KindNeuralParallel, Workers: 2}, factory)
	require.NoError(t, err)
	assert.Equal(t, "batch+parallel", e.String())
}
