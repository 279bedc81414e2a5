package httpd

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/models"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/RubachokBoss/interview-proctoring/internal/session"
)

const maxFrameBytes = 4 << 20

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req models.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.CandidateID) == "" || strings.TrimSpace(req.InterviewID) == "" {
		writeError(w, http.StatusBadRequest, "candidate_id and interview_id are required")
		return
	}

	controller, err := h.sessions.Open(req.CandidateID, req.InterviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, controller.Status())
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Close(candidateID, interviewID); err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, map[string]string{"status": "closed"})
}

func (h *Handler) GetSessionView(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	view, err := h.sessions.View(candidateID, interviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	writeSuccess(w, view)
}

func (h *Handler) GiveConsent(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	if err := h.sessions.GiveConsent(r.Context(), candidateID, interviewID); err != nil {
		h.handleSessionError(w, err)
		return
	}

	h.writeView(w, candidateID, interviewID)
}

func (h *Handler) ReportPermissions(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	var req models.PermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	perms := session.Permissions{
		Camera:     session.ParsePermissionState(req.Camera),
		Microphone: session.ParsePermissionState(req.Microphone),
	}
	if err := h.sessions.ReportPermissions(r.Context(), candidateID, interviewID, perms); err != nil {
		h.handleSessionError(w, err)
		return
	}

	h.writeView(w, candidateID, interviewID)
}

func (h *Handler) ReportSignal(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	var req models.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sig, err := session.ParseSignal(req.Kind, req.Value, time.Now())
	if err != nil {
		h.handleSessionError(w, err)
		return
	}

	if err := h.sessions.Dispatch(r.Context(), candidateID, interviewID, sig); err != nil {
		h.handleSessionError(w, err)
		return
	}

	h.writeView(w, candidateID, interviewID)
}

// PushFrame accepts the latest camera still either as a raw image/jpeg body
// with X-Frame-Time (ms), X-Frame-Width and X-Frame-Height headers, or as a
// multipart form with a "frame" file and time, width and height fields.
func (h *Handler) PushFrame(w http.ResponseWriter, r *http.Request) {
	candidateID, interviewID, ok := sessionParams(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBytes)

	var (
		frame vision.Frame
		err   error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		frame, err = frameFromForm(r)
	} else {
		frame, err = frameFromBody(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.PushFrame(candidateID, interviewID, frame); err != nil {
		h.handleSessionError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeView(w http.ResponseWriter, candidateID, interviewID string) {
	view, err := h.sessions.View(candidateID, interviewID)
	if err != nil {
		h.handleSessionError(w, err)
		return
	}
	writeSuccess(w, view)
}

func frameFromBody(r *http.Request) (vision.Frame, error) {
	jpeg, err := io.ReadAll(r.Body)
	if err != nil {
		return vision.Frame{}, errFrame("failed to read frame body")
	}
	return parseFrame(r.Header.Get("X-Frame-Time"), r.Header.Get("X-Frame-Width"), r.Header.Get("X-Frame-Height"), jpeg)
}

func frameFromForm(r *http.Request) (vision.Frame, error) {
	if err := r.ParseMultipartForm(maxFrameBytes); err != nil {
		return vision.Frame{}, errFrame("failed to parse form data")
	}

	file, _, err := r.FormFile("frame")
	if err != nil {
		return vision.Frame{}, errFrame("frame file is required")
	}
	defer file.Close()

	jpeg, err := io.ReadAll(file)
	if err != nil {
		return vision.Frame{}, errFrame("failed to read frame")
	}

	return parseFrame(r.FormValue("time"), r.FormValue("width"), r.FormValue("height"), jpeg)
}

func parseFrame(ts, width, height string, jpeg []byte) (vision.Frame, error) {
	if len(jpeg) == 0 {
		return vision.Frame{}, errFrame("frame is empty")
	}

	ms, err := strconv.ParseFloat(ts, 64)
	if err != nil || ms < 0 {
		return vision.Frame{}, errFrame("invalid frame time")
	}
	// Zero dimensions are accepted; the detector treats them as not ready.
	wpx, err := strconv.Atoi(defaultZero(width))
	if err != nil || wpx < 0 {
		return vision.Frame{}, errFrame("invalid frame width")
	}
	hpx, err := strconv.Atoi(defaultZero(height))
	if err != nil || hpx < 0 {
		return vision.Frame{}, errFrame("invalid frame height")
	}

	return vision.Frame{
		PresentationTime: time.Duration(ms * float64(time.Millisecond)),
		Width:            wpx,
		Height:           hpx,
		JPEG:             jpeg,
	}, nil
}

func defaultZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

type errFrame string

func (e errFrame) Error() string { return string(e) }
