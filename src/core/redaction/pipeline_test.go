package redaction

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"redactmail-server-go/src/core/providers/ocr"
	"redactmail-server-go/src/core/types"
	"redactmail-server-go/src/task"
)

// stubOCR routes extraction through a test-provided function.
type stubOCR struct {
	extract func(data []byte) ([]ocr.Fragment, error)
}

func (s *stubOCR) Initialize() error { return nil }
func (s *stubOCR) Cleanup() error    { return nil }

func (s *stubOCR) Extract(ctx context.Context, data []byte, format string) ([]ocr.Fragment, error) {
	return s.extract(data)
}

func newTestCoordinator(t *testing.T, textLLM, regionLLM *stubLLM, ocrProvider ocr.Provider) *Coordinator {
	t.Helper()
	logger := newTestLogger(t)

	pool := task.NewWorkerPool(task.ResourceConfig{MaxWorkers: 2})
	pool.Start()
	t.Cleanup(pool.Stop)

	return NewCoordinator(
		NewTextRedactor(textLLM, logger),
		ocrProvider,
		NewRegionClassifier(regionLLM, logger),
		NewMarkupEngine(logger),
		pool,
		logger,
	)
}

func runWithDeadline(t *testing.T, coord *Coordinator, req *Request) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return coord.Run(ctx, req, nil)
}

func TestCoordinatorEndToEnd(t *testing.T) {
	textLLM := &stubLLM{reply: "Contact [NAME] at [EMAIL], SSN [SSN]", tokens: 64}
	regionLLM := &stubLLM{reply: `{"0": "email"}`}
	ocrStub := &stubOCR{extract: func(data []byte) ([]ocr.Fragment, error) {
		return []ocr.Fragment{{Text: "jane@corp.example", X: 10, Y: 10, Width: 80, Height: 14}}, nil
	}}

	coord := newTestCoordinator(t, textLLM, regionLLM, ocrStub)
	img := whitePNG(t, 120, 60)

	result, err := runWithDeadline(t, coord, &Request{
		Body:     "Contact John Smith at john@example.com, SSN 123-45-6789",
		Images:   []ImageInput{{ID: "img-1", Data: img, Format: "png"}},
		Settings: DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.State != StateComplete {
		t.Fatalf("expected complete state, got %s", result.State)
	}
	if result.Text.Body != "Contact [NAME] at [EMAIL], SSN [SSN]" {
		t.Errorf("unexpected text %q", result.Text.Body)
	}
	if len(result.Images) != 1 {
		t.Fatalf("expected 1 image result, got %d", len(result.Images))
	}
	out := result.Images[0]
	if out.Failed {
		t.Fatalf("image failed: %s", out.Error)
	}
	if bytes.Equal(out.Redacted, img) {
		t.Error("image with a sensitive fragment must be modified")
	}
	if len(out.Fragments) != 1 || !out.Fragments[0].Sensitive {
		t.Errorf("expected 1 sensitive fragment, got %+v", out.Fragments)
	}
	if out.Fragments[0].ImageID != "img-1" {
		t.Errorf("fragment must be stamped with its image id, got %q", out.Fragments[0].ImageID)
	}
}

func TestCoordinatorIsolatesImageFailures(t *testing.T) {
	images := []ImageInput{
		{ID: "a", Data: whitePNG(t, 100, 50), Format: "png"},
		{ID: "b", Data: whitePNG(t, 110, 50), Format: "png"},
		{ID: "c", Data: whitePNG(t, 120, 50), Format: "png"},
	}

	textLLM := &stubLLM{reply: "[NAME]"}
	regionLLM := &stubLLM{reply: `{"0": "email"}`}
	ocrStub := &stubOCR{extract: func(data []byte) ([]ocr.Fragment, error) {
		if bytes.Equal(data, images[1].Data) {
			return nil, types.NewTransportError("ocrspace.parse", errors.New("rate limited"))
		}
		return []ocr.Fragment{{Text: "jane@corp.example", X: 5, Y: 5, Width: 80, Height: 12}}, nil
	}}

	coord := newTestCoordinator(t, textLLM, regionLLM, ocrStub)

	result, err := runWithDeadline(t, coord, &Request{
		Body:     "hello John",
		Images:   images,
		Settings: DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateComplete {
		t.Fatalf("one failed image must not fail the run, got state %s", result.State)
	}

	for i, want := range []bool{false, true, false} {
		got := result.Images[i]
		if got.Failed != want {
			t.Errorf("image %s: failed=%v, want %v (%s)", got.ID, got.Failed, want, got.Error)
		}
	}

	// failed image keeps its original bytes, marked unredacted
	failed := result.Images[1]
	if !bytes.Equal(failed.Redacted, images[1].Data) {
		t.Error("failed image must carry the original bytes")
	}
	if failed.Error == "" {
		t.Error("failed image must carry its error")
	}
	for _, i := range []int{0, 2} {
		if bytes.Equal(result.Images[i].Redacted, images[i].Data) {
			t.Errorf("image %s must be redacted", result.Images[i].ID)
		}
	}
}

func TestCoordinatorTextFailureIsTerminal(t *testing.T) {
	textLLM := &stubLLM{err: errors.New("llm down")}
	regionLLM := &stubLLM{reply: `{}`}
	ocrStub := &stubOCR{extract: func(data []byte) ([]ocr.Fragment, error) {
		return nil, nil
	}}

	coord := newTestCoordinator(t, textLLM, regionLLM, ocrStub)
	img := whitePNG(t, 80, 40)

	body := "Contact John Smith"
	result, err := runWithDeadline(t, coord, &Request{
		Body:     body,
		Images:   []ImageInput{{ID: "a", Data: img, Format: "png"}},
		Settings: DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.State != StateFailed {
		t.Fatalf("expected failed state, got %s", result.State)
	}
	if result.Text.Success || result.Text.Body != body {
		t.Error("failed text stage must keep the original body")
	}
	// image branches still run to completion
	if len(result.Images) != 1 || result.Images[0].Failed {
		t.Errorf("images must still be attempted, got %+v", result.Images)
	}
}

func TestCoordinatorImageWithoutTextPassesThrough(t *testing.T) {
	textLLM := &stubLLM{reply: "nothing here"}
	regionLLM := &stubLLM{reply: `{}`}
	ocrStub := &stubOCR{extract: func(data []byte) ([]ocr.Fragment, error) {
		return []ocr.Fragment{}, nil
	}}

	coord := newTestCoordinator(t, textLLM, regionLLM, ocrStub)
	img := whitePNG(t, 80, 40)

	result, err := runWithDeadline(t, coord, &Request{
		Body:     "x",
		Images:   []ImageInput{{ID: "a", Data: img, Format: "png"}},
		Settings: DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Images[0]
	if out.Failed {
		t.Fatalf("no detected text is not a failure: %s", out.Error)
	}
	if !bytes.Equal(out.Redacted, img) {
		t.Error("image with no text must pass through unchanged")
	}
	if regionLLM.callCount() != 0 {
		t.Error("no fragments means no classifier call")
	}
}

func TestCoordinatorValidation(t *testing.T) {
	coord := newTestCoordinator(t, &stubLLM{}, &stubLLM{}, &stubOCR{})
	coord.MaxImages = 2
	coord.MaxImageBytes = 64

	big := make([]byte, 65)
	tests := []struct {
		name string
		req  *Request
	}{
		{"empty request", &Request{Settings: DefaultSettings()}},
		{"too many images", &Request{
			Body: "x",
			Images: []ImageInput{
				{ID: "a", Data: []byte{1}}, {ID: "b", Data: []byte{1}}, {ID: "c", Data: []byte{1}},
			},
			Settings: DefaultSettings(),
		}},
		{"oversized image", &Request{
			Body:     "x",
			Images:   []ImageInput{{ID: "a", Data: big}},
			Settings: DefaultSettings(),
		}},
		{"empty image", &Request{
			Body:     "x",
			Images:   []ImageInput{{ID: "a"}},
			Settings: DefaultSettings(),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWithDeadline(t, coord, tt.req)
			var vErr *types.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCoordinatorEventOrder(t *testing.T) {
	textLLM := &stubLLM{reply: "done"}
	coord := newTestCoordinator(t, textLLM, &stubLLM{reply: `{}`}, &stubOCR{
		extract: func(data []byte) ([]ocr.Fragment, error) { return nil, nil },
	})

	result, err := runWithDeadline(t, coord, &Request{Body: "x", Settings: DefaultSettings()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Events) < 3 {
		t.Fatalf("expected at least 3 events, got %d", len(result.Events))
	}
	if result.Events[0].Stage != "text" {
		t.Errorf("first event must be the text stage, got %q", result.Events[0].Stage)
	}
	last := result.Events[len(result.Events)-1]
	if last.Stage != "done" {
		t.Errorf("last event must be the done stage, got %q", last.Stage)
	}
}
