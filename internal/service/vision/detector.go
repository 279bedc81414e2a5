package vision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/rs/zerolog"
)

// Detector is a per-session handle on the face-detection model. The model is
// loaded lazily by the first successful Initialize; later calls are no-ops.
type Detector struct {
	client Client
	model  string
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	disposed    bool
	hasLast     bool
	lastPTS     time.Duration
}

func NewDetector(client Client, model string, logger zerolog.Logger) *Detector {
	return &Detector{
		client: client,
		model:  model,
		logger: logger,
	}
}

func (d *Detector) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return fmt.Errorf("%w: detector disposed", models.ErrDetectorUnavailable)
	}
	if d.initialized {
		return nil
	}

	if err := d.client.LoadModel(ctx, d.model); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDetectorUnavailable, err)
	}

	d.initialized = true
	return nil
}

// Detect runs the model over frame. Frames whose presentation time equals the
// previous call's, frames without dimensions, and calls made before
// Initialize or after Dispose yield a skipped, empty list rather than an error.
func (d *Detector) Detect(ctx context.Context, frame Frame) (*DetectionList, error) {
	d.mu.Lock()
	if !d.initialized || d.disposed || !frame.Ready() {
		d.mu.Unlock()
		return skippedList(), nil
	}
	if d.hasLast && frame.PresentationTime == d.lastPTS {
		d.mu.Unlock()
		return skippedList(), nil
	}
	d.hasLast = true
	d.lastPTS = frame.PresentationTime
	d.mu.Unlock()

	raw, err := d.client.Detect(ctx, d.model, frame)
	if err != nil {
		return nil, err
	}

	return newDetectionList(raw), nil
}

func (d *Detector) Dispose() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.disposed {
		d.logger.Debug().Str("model", d.model).Msg("Face detector disposed")
	}
	d.disposed = true
	d.initialized = false
}
