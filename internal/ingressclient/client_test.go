package ingressclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spyoptions/internal/contracts"
)

func TestPostAnomaliesSucceeds(t *testing.T) {
	var gotCount atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/anomalies", r.URL.Path)
		gotCount.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, 2*time.Second)
	err := c.PostAnomalies(context.Background(), contracts.AnomaliesBatch{Count: 0, Anomalies: nil})
	require.NoError(t, err)
	assert.Equal(t, int32(1), gotCount.Load())
}

func TestPostRetriesOnceOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, 2*time.Second)
	err := c.PostVolumeSnapshot(context.Background(), contracts.VolumeSnapshot{TsMS: 1})
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPostFailsAfterExhaustingRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 2*time.Second)
	err := c.PostFlowSnapshot(context.Background(), contracts.FlowSnapshot{TsUnix: 1})
	assert.Error(t, err)
}
