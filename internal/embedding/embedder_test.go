package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/scribeworks/scribe/internal/testutil"
)

// fakeProvider returns vectors that encode the input text length so ordering
// can be asserted end to end.
type fakeProvider struct {
	calls [][]string
	err   error
}

func (f *fakeProvider) createEmbeddings(_ context.Context, inputs []string) ([][]float64, error) {
	f.calls = append(f.calls, append([]string(nil), inputs...))
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float64, len(inputs))
	for i, in := range inputs {
		vecs[i] = []float64{float64(len(in)), 1}
	}
	return vecs, nil
}

func newTestClient(p provider, cfg Config) *Client {
	return newWithProvider(p, cfg, testutil.QuietLogger())
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(p, Config{Dimensions: 2})

	texts := []string{"a", "bb", "ccc", "dddd"}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		// First component encodes input length; ratio survives normalization.
		wantRatio := float64(len(texts[i]))
		gotRatio := float64(v[0] / v[1])
		if math.Abs(gotRatio-wantRatio) > 1e-4 {
			t.Errorf("vector %d ratio = %f, want %f", i, gotRatio, wantRatio)
		}
	}
}

func TestEmbedBatch_SplitsAtBatchCap(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(p, Config{Dimensions: 2})

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text " + strconv.Itoa(i)
	}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}

	if len(p.calls) != 3 {
		t.Fatalf("provider called %d times, want 3", len(p.calls))
	}
	for i, want := range []int{100, 100, 50} {
		if len(p.calls[i]) != want {
			t.Errorf("call %d carried %d inputs, want %d", i, len(p.calls[i]), want)
		}
	}
	if p.calls[0][0] != "text 0" || p.calls[2][49] != "text 249" {
		t.Error("sub-batches do not cover inputs in order")
	}
}

func TestEmbedBatch_VectorsAreUnitNorm(t *testing.T) {
	c := newTestClient(&fakeProvider{}, Config{Dimensions: 2})

	vecs, err := c.EmbedBatch(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", norm)
	}
}

func TestEmbedBatch_EmptyTextYieldsZeroVector(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(p, Config{Dimensions: 4})

	vecs, err := c.EmbedBatch(context.Background(), []string{"", "  \n\r "})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(p.calls) != 0 {
		t.Fatalf("provider called %d times for all-empty batch, want 0", len(p.calls))
	}
	for i, v := range vecs {
		if len(v) != 4 {
			t.Fatalf("vector %d has dimension %d, want 4", i, len(v))
		}
		for _, x := range v {
			if x != 0 {
				t.Errorf("vector %d is not zero: %v", i, v)
				break
			}
		}
	}
}

func TestEmbedBatch_MixedEmptyKeepsPlacement(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(p, Config{Dimensions: 2})

	vecs, err := c.EmbedBatch(context.Background(), []string{"first", "", "third"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(p.calls) != 1 || len(p.calls[0]) != 2 {
		t.Fatalf("provider should receive only the two non-empty inputs, got %v", p.calls)
	}
	if vecs[1][0] != 0 || vecs[1][1] != 0 {
		t.Errorf("slot 1 should hold the zero vector, got %v", vecs[1])
	}
	if vecs[0][0] == 0 || vecs[2][0] == 0 {
		t.Error("non-empty slots should hold real vectors")
	}
}

func TestEmbedBatch_ProviderErrorIsFatal(t *testing.T) {
	wantErr := errors.New("provider down")
	c := newTestClient(&fakeProvider{err: wantErr}, Config{Dimensions: 2})

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("EmbedBatch error = %v, want wrapped %v", err, wantErr)
	}
}

type countMismatchProvider struct{}

func (countMismatchProvider) createEmbeddings(_ context.Context, inputs []string) ([][]float64, error) {
	return make([][]float64, len(inputs)-1), nil
}

func TestEmbedBatch_CountMismatchIsError(t *testing.T) {
	c := newTestClient(countMismatchProvider{}, Config{Dimensions: 2})
	if _, err := c.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected an error when the provider returns too few vectors")
	}
}

func TestEmbed_SingleText(t *testing.T) {
	c := newTestClient(&fakeProvider{}, Config{Dimensions: 2})
	v, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 2 {
		t.Fatalf("dimension = %d, want 2", len(v))
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"  padded  ", "padded"},
		{"line\none", "line one"},
		{"cr\r\nlf", "cr  lf"},
		{"\n\r\n", ""},
	}
	for _, tc := range cases {
		if got := cleanText(tc.in); got != tc.want {
			t.Errorf("cleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	v := normalize([]float64{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalize(3,4) = %v, want (0.6, 0.8)", v)
	}

	// Sub-unit vectors are left unscaled rather than amplified.
	small := normalize([]float64{0.1, 0.2})
	if small[0] != float32(0.1) || small[1] != float32(0.2) {
		t.Errorf("normalize(0.1,0.2) = %v, want unchanged", small)
	}
}

func TestDimensionsDefault(t *testing.T) {
	c := newTestClient(&fakeProvider{}, Config{})
	if c.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions() = %d, want %d", c.Dimensions(), DefaultDimensions)
	}
}

func ExampleClient_Embed() {
	c := newWithProvider(&fakeProvider{}, Config{Dimensions: 2}, testutil.QuietLogger())
	v, _ := c.Embed(context.Background(), "hello")
	fmt.Println(len(v))
	// Output: 2
}
