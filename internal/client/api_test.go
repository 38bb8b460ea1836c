package client

import (
	"context"
	"encoding/json"
	"exam_prep_backend/internal/model"
	"exam_prep_backend/internal/service"
	"exam_prep_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(util.Response{Code: status, Message: message, Data: data})
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL + "/"
	c, err := NewAPIClient(opts)
	require.NoError(t, err)
	return c
}

func TestAPIClientRequiresBaseURL(t *testing.T) {
	_, err := NewAPIClient(Options{BaseURL: "  "})
	assert.Error(t, err)

	c, err := NewAPIClient(Options{BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.False(t, c.Authenticated())
}

func TestAPIClientGetProgress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/progress", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("unitId"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		cp := model.NewChapterProgress()
		cp.ApplyAuto(60)
		writeEnvelope(w, http.StatusOK, "success", []model.UnitSnapshot{{
			UnitID:       "u1",
			Progress:     model.ChapterProgressMap{"c1": cp},
			UnitProgress: 60,
		}})
	}, Options{Token: "tok"})

	assert.True(t, c.Authenticated())
	list, err := c.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 60, list[0].Progress["c1"].Progress)
	assert.Equal(t, 60, list[0].UnitProgress)
}

func TestAPIClientTrackVisit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/progress/track-visit", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req service.TrackVisitRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.ItemTopic, req.ItemType)
		assert.Equal(t, "t1", req.ItemID)

		cp := model.NewChapterProgress()
		cp.VisitedItems.Add(req.ItemType, req.ItemID)
		cp.ApplyAuto(50)
		writeEnvelope(w, http.StatusOK, "success", service.ChapterProgressResponse{
			UnitID: req.UnitID, ChapterID: req.ChapterID,
			ChapterProgress: cp, AutoCalculatedProgress: 50, UnitProgress: 25,
		})
	}, Options{Token: "tok"})

	resp, err := c.TrackVisit(context.Background(), service.TrackVisitRequest{
		UnitID: "u1", ChapterID: "c1", ItemType: model.ItemTopic, ItemID: "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, 50, resp.ChapterProgress.Progress)
	assert.Equal(t, 25, resp.UnitProgress)
	assert.Equal(t, []string{"t1"}, resp.ChapterProgress.VisitedItems.Topics)
}

func TestAPIClientMarkWithoutData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/progress/mark-congratulations", r.URL.Path)
		writeEnvelope(w, http.StatusOK, "success", nil)
	}, Options{Token: "tok"})

	err := c.MarkCongratulations(context.Background(), service.MarkCongratulationsRequest{
		Type: model.CelebrationUnit, UnitID: "u1",
	})
	assert.NoError(t, err)
}

func TestAPIClientStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, util.ErrValidation},
		{http.StatusUnauthorized, util.ErrAuth},
		{http.StatusForbidden, util.ErrForbidden},
		{http.StatusNotFound, util.ErrNotFound},
		{http.StatusGatewayTimeout, util.ErrTimeout},
		{http.StatusBadGateway, util.ErrNetwork},
		{http.StatusInternalServerError, util.ErrStore},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, tc.status, "chapter progress not found", nil)
		}, Options{Token: "tok"})

		_, err := c.GetSubject(context.Background(), "s1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestAPIClientPlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}, Options{})

	_, err := c.ListExams(context.Background(), util.StatusActive, 1, 20)
	assert.ErrorIs(t, err, util.ErrNetwork)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestAPIClientTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, Options{Timeout: 20 * time.Millisecond})

	_, err := c.GetExamTree(context.Background(), "e1")
	assert.ErrorIs(t, err, util.ErrTimeout)
}

func TestAPIClientCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, "success", nil)
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetExamTree(ctx, "e1")
	assert.ErrorIs(t, err, util.ErrAborted)
}

func TestAPIClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewAPIClient(Options{BaseURL: url})
	require.NoError(t, err)
	_, err = c.GetProgress(context.Background(), "u1")
	assert.ErrorIs(t, err, util.ErrNetwork)
}
