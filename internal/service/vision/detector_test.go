package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVisionServer(t *testing.T, faces int, loads, detects *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models/load":
			atomic.AddInt32(loads, 1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"loaded"}`))
		case "/v1/detect":
			atomic.AddInt32(detects, 1)
			assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
			assert.Equal(t, "640", r.Header.Get("X-Frame-Width"))

			detections := make([]Detection, faces)
			for i := range detections {
				detections[i] = Detection{Score: 0.9, Box: BoundingBox{X: float64(i) * 100, Width: 80, Height: 80}}
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"detections": detections})
		default:
			http.NotFound(w, r)
		}
	}))
}

func frameAt(pts time.Duration) Frame {
	return Frame{PresentationTime: pts, Width: 640, Height: 480, JPEG: []byte{0xff, 0xd8}}
}

func TestDetectorInitializeOnce(t *testing.T) {
	var loads, detects int32
	server := newVisionServer(t, 1, &loads, &detects)
	defer server.Close()

	d := NewDetector(NewClient(server.URL, time.Second, 0, 0, zerolog.Nop()), "face", zerolog.Nop())
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Initialize(context.Background()))
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestDetectorDeduplicatesByPresentationTime(t *testing.T) {
	var loads, detects int32
	server := newVisionServer(t, 2, &loads, &detects)
	defer server.Close()

	d := NewDetector(NewClient(server.URL, time.Second, 0, 0, zerolog.Nop()), "face", zerolog.Nop())
	require.NoError(t, d.Initialize(context.Background()))

	first, err := d.Detect(context.Background(), frameAt(time.Second))
	require.NoError(t, err)
	assert.False(t, first.Skipped())
	assert.Equal(t, 2, first.Len())

	second, err := d.Detect(context.Background(), frameAt(time.Second))
	require.NoError(t, err)
	assert.True(t, second.Skipped())
	assert.Equal(t, 0, second.Len())

	third, err := d.Detect(context.Background(), frameAt(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, third.Len())

	assert.Equal(t, int32(2), atomic.LoadInt32(&detects))
}

func TestDetectorSkipsBeforeInitAndUnreadyFrames(t *testing.T) {
	var loads, detects int32
	server := newVisionServer(t, 1, &loads, &detects)
	defer server.Close()

	d := NewDetector(NewClient(server.URL, time.Second, 0, 0, zerolog.Nop()), "face", zerolog.Nop())

	list, err := d.Detect(context.Background(), frameAt(time.Second))
	require.NoError(t, err)
	assert.True(t, list.Skipped())

	require.NoError(t, d.Initialize(context.Background()))
	list, err = d.Detect(context.Background(), Frame{PresentationTime: time.Second})
	require.NoError(t, err)
	assert.True(t, list.Skipped())

	assert.Equal(t, int32(0), atomic.LoadInt32(&detects))
}

func TestDetectorInitializeFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	d := NewDetector(NewClient(server.URL, time.Second, 1, time.Millisecond, zerolog.Nop()), "face", zerolog.Nop())
	err := d.Initialize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDetectorUnavailable)
}

func TestDetectorDisposeStopsDetection(t *testing.T) {
	var loads, detects int32
	server := newVisionServer(t, 1, &loads, &detects)
	defer server.Close()

	d := NewDetector(NewClient(server.URL, time.Second, 0, 0, zerolog.Nop()), "face", zerolog.Nop())
	require.NoError(t, d.Initialize(context.Background()))
	d.Dispose()

	list, err := d.Detect(context.Background(), frameAt(time.Second))
	require.NoError(t, err)
	assert.True(t, list.Skipped())
	assert.ErrorIs(t, d.Initialize(context.Background()), models.ErrDetectorUnavailable)
}

func TestDetectionListIsSinglePass(t *testing.T) {
	list := newDetectionList([]json.RawMessage{
		json.RawMessage(`{"score":0.8,"box":{"x":1}}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"score":0.7}`),
	})

	var scores []float64
	for d, ok := list.Next(); ok; d, ok = list.Next() {
		scores = append(scores, d.Score)
	}

	assert.Equal(t, []float64{0.8, 0.7}, scores)
	_, ok := list.Next()
	assert.False(t, ok)
	assert.Equal(t, 3, list.Len())
}

func TestDetectEscapesModelName(t *testing.T) {
	var gotModel, gotRawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Query().Get("model")
		gotRawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, 0, 0, zerolog.Nop())
	_, err := client.Detect(context.Background(), "short range&debug=1", frameAt(time.Second))
	require.NoError(t, err)

	assert.Equal(t, "short range&debug=1", gotModel)
	assert.NotContains(t, gotRawQuery, "debug=1")
}
