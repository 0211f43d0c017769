package redaction

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"redactmail-server-go/src/core/providers/ocr"
	"redactmail-server-go/src/core/types"
	"redactmail-server-go/src/core/utils"
	"redactmail-server-go/src/task"
)

// State is the coordinator's position in one request's lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateTextRedacting    State = "text_redacting"
	StateImagesProcessing State = "images_processing"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

// ProgressEvent is UI feedback emitted in chronological order during a
// run. Events carry no data the result depends on.
type ProgressEvent struct {
	Stage    string  `json:"stage"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress,omitempty"`
}

// ProgressSink receives events as they are emitted. May be nil.
type ProgressSink func(ProgressEvent)

// ImageInput is one uploaded image entering the pipeline.
type ImageInput struct {
	ID     string
	Data   []byte
	Format string
}

// ImageResult pairs an input image with its redacted copy. A failed image
// keeps the original bytes and sets Failed, so the caller can still show
// something and knows it is unredacted.
type ImageResult struct {
	ID        string               `json:"id"`
	Original  []byte               `json:"-"`
	Redacted  []byte               `json:"-"`
	Fragments []ClassifiedFragment `json:"fragments,omitempty"`
	Failed    bool                 `json:"failed"`
	Error     string               `json:"error,omitempty"`
}

// Request is one complete redaction request. Settings are immutable for
// its duration.
type Request struct {
	Body     string
	Images   []ImageInput
	Settings Settings
}

// Result aggregates one finished run. Failed state only follows from a
// text-redaction transport failure; individual image failures are
// recorded per image and never terminal.
type Result struct {
	State  State           `json:"state"`
	Text   *TextResult     `json:"text"`
	Images []ImageResult   `json:"images"`
	Events []ProgressEvent `json:"events"`
}

// Coordinator sequences one text redaction call and a per-image
// OCR → classify → mark-up chain for every uploaded image. Image chains
// are independent and fan out through the worker pool; the aggregation
// step is the only synchronization point.
type Coordinator struct {
	text       *TextRedactor
	ocr        ocr.Provider
	classifier *RegionClassifier
	markup     *MarkupEngine
	pool       *task.WorkerPool
	logger     *utils.TaggedLogger

	// per-external-call deadline
	callTimeout time.Duration

	MaxImages     int
	MaxImageBytes int64
}

// imageJob carries one image through the worker pool.
type imageJob struct {
	coord    *Coordinator
	input    ImageInput
	settings Settings
	index    int
	total    int
	emit     func(ProgressEvent)
	slot     *ImageResult
}

// imageCallback signals branch completion to the aggregation step. The
// result slot is already written by the executor.
type imageCallback struct {
	wg   *sync.WaitGroup
	job  *imageJob
	once sync.Once
}

func (cb *imageCallback) OnComplete(interface{}) { cb.once.Do(cb.wg.Done) }

func (cb *imageCallback) OnError(err error) {
	cb.once.Do(func() {
		if !cb.job.slot.Failed && cb.job.slot.Redacted == nil {
			cb.job.slot.Failed = true
			cb.job.slot.Error = err.Error()
			cb.job.slot.Redacted = bytes.Clone(cb.job.input.Data)
		}
		cb.wg.Done()
	})
}

func init() {
	task.RegisterTaskExecutor(task.TaskTypeImageRedact, func(t *task.Task) error {
		job, ok := t.Params.(*imageJob)
		if !ok {
			return fmt.Errorf("unexpected params type %T", t.Params)
		}
		job.coord.processImage(t.Context, job)
		return nil
	})
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(text *TextRedactor, ocrProvider ocr.Provider, classifier *RegionClassifier, markup *MarkupEngine, pool *task.WorkerPool, logger *utils.Logger) *Coordinator {
	return &Coordinator{
		text:          text,
		ocr:           ocrProvider,
		classifier:    classifier,
		markup:        markup,
		pool:          pool,
		logger:        logger.WithTag("pipeline"),
		callTimeout:   30 * time.Second,
		MaxImages:     10,
		MaxImageBytes: 5 * 1024 * 1024,
	}
}

// Validate rejects malformed input before any external call is made.
func (c *Coordinator) Validate(req *Request) error {
	if req.Body == "" && len(req.Images) == 0 {
		return &types.ValidationError{Field: "request", Reason: "no text or images to process"}
	}
	if len(req.Images) > c.MaxImages {
		return &types.ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("%d images exceed the limit of %d", len(req.Images), c.MaxImages),
		}
	}
	for _, img := range req.Images {
		if int64(len(img.Data)) > c.MaxImageBytes {
			return &types.ValidationError{
				Field:  "images",
				Reason: fmt.Sprintf("image %s exceeds the size limit of %d bytes", img.ID, c.MaxImageBytes),
			}
		}
		if len(img.Data) == 0 {
			return &types.ValidationError{Field: "images", Reason: fmt.Sprintf("image %s is empty", img.ID)}
		}
	}
	return nil
}

// Run executes one request to completion. The returned result is Complete
// once the text call finished and every image has been attempted; only a
// text transport failure (or invalid input) is terminal.
func (c *Coordinator) Run(ctx context.Context, req *Request, sink ProgressSink) (*Result, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	result := &Result{State: StateIdle}

	var eventMu sync.Mutex
	emit := func(ev ProgressEvent) {
		eventMu.Lock()
		result.Events = append(result.Events, ev)
		eventMu.Unlock()
		if sink != nil {
			sink(ev)
		}
	}

	// Text stage.
	result.State = StateTextRedacting
	emit(ProgressEvent{Stage: "text", Message: "Redacting email text..."})

	textCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	result.Text = c.text.Redact(textCtx, req.Body, req.Settings)
	cancel()

	if result.Text.Success {
		emit(ProgressEvent{Stage: "text", Message: fmt.Sprintf("Text redaction complete (%d tokens used)", result.Text.TotalTokens)})
	} else {
		emit(ProgressEvent{Stage: "text", Message: fmt.Sprintf("Text redaction failed: %v", result.Text.Err)})
	}

	// Image stages fan out; each branch owns exactly one result slot.
	if len(req.Images) > 0 {
		result.State = StateImagesProcessing
		emit(ProgressEvent{Stage: "images", Message: fmt.Sprintf("Processing %d image(s)...", len(req.Images))})

		result.Images = make([]ImageResult, len(req.Images))

		var wg sync.WaitGroup
		for i, img := range req.Images {
			result.Images[i] = ImageResult{ID: img.ID, Original: img.Data}

			job := &imageJob{
				coord:    c,
				input:    img,
				settings: req.Settings,
				index:    i,
				total:    len(req.Images),
				emit:     emit,
				slot:     &result.Images[i],
			}

			wg.Add(1)
			t, _ := task.NewTask(ctx, task.TaskTypeImageRedact, job)
			t.Callback = &imageCallback{wg: &wg, job: job}
			if err := c.pool.Submit(t); err != nil {
				job.slot.Failed = true
				job.slot.Error = err.Error()
				job.slot.Redacted = bytes.Clone(img.Data)
				wg.Done()
			}
		}

		// Aggregation: wait for all branches, or stop waiting when the
		// caller goes away (in-flight results are discarded on arrival).
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		failed := 0
		for _, img := range result.Images {
			if img.Failed {
				failed++
			}
		}
		emit(ProgressEvent{Stage: "images", Message: fmt.Sprintf("All %d image(s) attempted, %d failed", len(req.Images), failed), Progress: 1})
	}

	if !result.Text.Success {
		result.State = StateFailed
		emit(ProgressEvent{Stage: "done", Message: "Request failed: text redaction unavailable"})
		return result, nil
	}

	result.State = StateComplete
	emit(ProgressEvent{Stage: "done", Message: "Redaction complete"})
	return result, nil
}

// processImage runs one image's OCR → classify → mark-up chain and writes
// the job's result slot. Failures stay contained to this image.
func (c *Coordinator) processImage(ctx context.Context, job *imageJob) {
	slot := job.slot
	label := fmt.Sprintf("image %d/%d", job.index+1, job.total)

	fail := func(stage string, err error) {
		slot.Failed = true
		slot.Error = err.Error()
		slot.Redacted = bytes.Clone(job.input.Data)
		c.logger.Warn(fmt.Sprintf("%s %s failed: %v", label, stage, err))
		job.emit(ProgressEvent{Stage: "image", Message: fmt.Sprintf("%s: %s failed, left unredacted", label, stage)})
	}

	job.emit(ProgressEvent{Stage: "image", Message: fmt.Sprintf("%s: extracting text...", label)})

	ocrCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	fragments, err := c.ocr.Extract(ocrCtx, job.input.Data, job.input.Format)
	cancel()
	if err != nil {
		fail("OCR", err)
		return
	}

	if len(fragments) == 0 {
		// no text is a valid result, nothing to cover
		slot.Redacted = bytes.Clone(job.input.Data)
		job.emit(ProgressEvent{Stage: "image", Message: fmt.Sprintf("%s: no text detected", label)})
		return
	}
	for i := range fragments {
		fragments[i].ImageID = job.input.ID
	}

	job.emit(ProgressEvent{Stage: "image", Message: fmt.Sprintf("%s: classifying %d text elements...", label, len(fragments))})

	classifyCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	classified, err := c.classifier.Classify(classifyCtx, fragments, job.settings)
	cancel()
	if err != nil {
		fail("classification", err)
		return
	}

	redacted, err := c.markup.Redact(job.input.Data, classified, job.settings)
	if err != nil {
		fail("mark-up", err)
		return
	}

	slot.Redacted = redacted
	slot.Fragments = classified
	job.emit(ProgressEvent{Stage: "image", Message: fmt.Sprintf("%s: redaction complete", label)})
}
