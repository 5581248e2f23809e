package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeQueryEmbedder struct {
	vector   []float32
	err      error
	lastText string
}

func (f *fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.vector, f.err
}

func newTestClient(fake *fakeQueryEmbedder, dimensions int) *Client {
	return &Client{embedder: fake, dimensions: dimensions, timeout: time.Second}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	fake := &fakeQueryEmbedder{vector: []float32{1, 2}}
	c := newTestClient(fake, 2)

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		_, err := c.Embed(context.Background(), text)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Embed(%q): err = %v, want ErrInvalidInput", text, err)
		}
	}
	if fake.lastText != "" {
		t.Error("provider was called for invalid input")
	}
}

func TestEmbedFlattensNewlines(t *testing.T) {
	fake := &fakeQueryEmbedder{vector: []float32{1, 2}}
	c := newTestClient(fake, 2)

	if _, err := c.Embed(context.Background(), "line one\nline two\nline three"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	want := "line one line two line three"
	if fake.lastText != want {
		t.Errorf("provider received %q, want %q", fake.lastText, want)
	}
}

func TestEmbedChecksDimensions(t *testing.T) {
	fake := &fakeQueryEmbedder{vector: []float32{1, 2, 3}}
	c := newTestClient(fake, 4)

	_, err := c.Embed(context.Background(), "some question")
	if !errors.Is(err, ErrService) {
		t.Errorf("err = %v, want ErrService", err)
	}

	// Zero configured dimensions disables the check.
	c = newTestClient(fake, 0)
	vector, err := c.Embed(context.Background(), "some question")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vector) != 3 {
		t.Errorf("got vector of length %d, want 3", len(vector))
	}
}

func TestEmbedWrapsProviderError(t *testing.T) {
	fake := &fakeQueryEmbedder{err: errors.New("rate limited")}
	c := newTestClient(fake, 2)

	_, err := c.Embed(context.Background(), "some question")
	if !errors.Is(err, ErrService) {
		t.Errorf("err = %v, want ErrService", err)
	}
}

func TestNewClientRequiresModel(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "sk-test"}); err == nil {
		t.Error("NewClient without model succeeded, want error")
	}
}
