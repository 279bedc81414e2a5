package session

import (
	"context"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
)

func (c *Controller) detectFaces(ctx context.Context) {
	defer c.loops.Done()

	if err := c.deps.Detector.Initialize(ctx); err != nil {
		c.deps.Metrics.DetectorFailed()
		c.logger.Warn().Err(err).Msg("Face detector unavailable, face checks disabled for this session")

		c.mu.Lock()
		c.visionEnabled = false
		c.mu.Unlock()
		return
	}

	ticker := time.NewTicker(c.cfg.DetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.detectOnce(ctx)
		}
	}
}

// detectOnce evaluates the current frame. The detector runs without the lock
// held, so the state is checked again before the result is acted on.
func (c *Controller) detectOnce(ctx context.Context) {
	c.mu.Lock()
	if !c.activeLocked() || c.stream == nil {
		c.mu.Unlock()
		return
	}
	frame, ok := c.stream.CurrentFrame()
	c.mu.Unlock()

	if !ok {
		return
	}

	started := time.Now()
	list, err := c.deps.Detector.Detect(ctx, frame)
	c.deps.Metrics.ObserveDetection(time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.deps.Metrics.DetectorFailed()
		c.logger.Debug().Err(err).Msg("Face detection pass failed, skipping frame")
		return
	}
	if list.Skipped() {
		return
	}

	faces := 0
	for {
		if _, ok := list.Next(); !ok {
			break
		}
		faces++
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return
	}

	switch {
	case faces == 0:
		c.reportLocked(models.EventTypeFaceMissing, warnFaceMissing, "No face detected in camera frame", &faces, frame.JPEG)
	case faces > 1:
		c.reportLocked(models.EventTypeMultipleFaces, warnMultipleFaces, "Multiple faces detected in camera frame", &faces, frame.JPEG)
	}
}
