package operator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfoerderer/gridcontrol-bems-sub001/auth"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/fms"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

// fakeFMS records requests and answers from a scripted status list.
type fakeFMS struct {
	mu       sync.Mutex
	statuses []int
	pending  map[string]Message
	requests []recorded
}

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   []byte
}

func (f *fakeFMS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recorded{r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization"), body})
	if len(f.statuses) > 0 {
		code := f.statuses[0]
		f.statuses = f.statuses[1:]
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
	}
	switch r.Method {
	case http.MethodGet:
		m, ok := f.pending[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(m)
	case http.MethodDelete:
		delete(f.pending, r.URL.Path)
	}
}

func (f *fakeFMS) recorded() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newFMSClient(t *testing.T, f *fakeFMS) *FMSClient {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewFMSClient(FMSConfig{
		ClientConfig: ClientConfig{BaseURL: srv.URL, MaxRetries: 2, BackoffMS: 1, Auth: auth.Conf{User: "gems", Password: "pw"}},
		Site:         "vsp1",
	}, srv.Client(), logger.NopLogger{})
	require.NoError(t, err)
	return c
}

func TestPublishSchedule(t *testing.T) {
	f := &fakeFMS{}
	c := newFMSClient(t, f)
	require.NoError(t, c.PublishSchedule(context.Background(), sampleSchedule(), sampleFlexibility(), fms.InitialSchedule))

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/push/vsp1/initial_schedule", reqs[0].Path)
	assert.Equal(t, "Basic Z2Vtczpwdw==", reqs[0].Auth)
	var m Message
	require.NoError(t, json.Unmarshal(reqs[0].Body, &m))
	assert.Equal(t, "vsp1", m.Site)
	assert.Equal(t, sampleSchedule(), *m.Schedule)
}

func TestPublishScheduleRetriesServerErrors(t *testing.T) {
	f := &fakeFMS{statuses: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	c := newFMSClient(t, f)
	require.NoError(t, c.PublishSchedule(context.Background(), sampleSchedule(), sampleFlexibility(), fms.ScheduleUpdate))
	assert.Len(t, f.recorded(), 3)
}

func TestPublishScheduleClientErrorIsFinal(t *testing.T) {
	f := &fakeFMS{statuses: []int{http.StatusBadRequest}}
	c := newFMSClient(t, f)
	err := c.PublishSchedule(context.Background(), sampleSchedule(), sampleFlexibility(), fms.InitialSchedule)
	var serr *StatusError
	require.True(t, errors.As(err, &serr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.Len(t, f.recorded(), 1)
}

func TestPublishScheduleValidatesFrames(t *testing.T) {
	f := &fakeFMS{}
	c := newFMSClient(t, f)
	misaligned := sampleFlexibility()
	misaligned.StartingTime += 900
	shorter := sampleFlexibility()
	shorter.PowerCorridor = shorter.PowerCorridor[:3]
	shorter.EnergyCorridor = shorter.EnergyCorridor[:3]

	ctx := context.Background()
	assert.ErrorIs(t, c.PublishSchedule(ctx, sampleSchedule(), misaligned, fms.InitialSchedule), model.ErrInvalidFlexibility)
	assert.ErrorIs(t, c.PublishSchedule(ctx, sampleSchedule(), shorter, fms.InitialSchedule), model.ErrInvalidFlexibility)
	assert.Error(t, c.PublishSchedule(ctx, sampleSchedule(), sampleFlexibility(), fms.TargetSchedule))
	assert.Empty(t, f.recorded())
}

func TestDeclineScheduleRequest(t *testing.T) {
	f := &fakeFMS{}
	c := newFMSClient(t, f)
	require.NoError(t, c.DeclineScheduleRequest(context.Background()))
	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/push/vsp1/schedule_request_denial", reqs[0].Path)
}

func TestNewFMSClientValidates(t *testing.T) {
	_, err := NewFMSClient(FMSConfig{ClientConfig: ClientConfig{BaseURL: "http://fms"}}, nil, logger.NopLogger{})
	assert.Error(t, err)
	_, err = NewFMSClient(FMSConfig{ClientConfig: ClientConfig{BaseURL: "ftp://fms"}, Site: "x"}, nil, logger.NopLogger{})
	assert.Error(t, err)
}

func TestControlClient(t *testing.T) {
	f := &fakeFMS{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(f)
	defer srv.Close()
	c, err := NewControlClient(ControlConfig{ClientConfig: ClientConfig{BaseURL: srv.URL, BackoffMS: 1}}, srv.Client(), logger.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, c.PublishMessage(context.Background(), "alerts", []byte("battery low")))
	reqs := f.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/messages/alerts", reqs[1].Path)
	assert.Equal(t, "battery low", string(reqs[1].Body))
	assert.Error(t, c.PublishMessage(context.Background(), "", nil))
}
