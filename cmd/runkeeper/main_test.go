package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	t.Run("success - trigger decodes the queued build", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/jobs/stuff/builds", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"job":"stuff","number":3,"display_name":"Stuff","status":"not started"}`))
		}))
		defer srv.Close()

		// act
		bv, err := NewClient(srv.URL, time.Second).Trigger(context.Background(), "stuff")

		// assert
		require.NoError(t, err)
		assert.Equal(t, int64(3), bv.Number)
		assert.Equal(t, "not started", bv.Status)
	})
	t.Run("failure - server message surfaced", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Unable to delete up #1 because it is kept because of down #1"}`))
		}))
		defer srv.Close()

		// act
		err := NewClient(srv.URL, time.Second).Delete(context.Background(), "up", 1)

		// assert
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusConflict, apiErr.Status)
		assert.Contains(t, apiErr.Message, "kept because of down #1")
	})
	t.Run("success - wait polls until completed", func(t *testing.T) {
		// arrange
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"job":"stuff","number":1,"status":"running"}`))
				return
			}
			_, _ = w.Write([]byte(`{"job":"stuff","number":1,"status":"completed","result":"SUCCESS"}`))
		}))
		defer srv.Close()

		// act
		rv, err := NewClient(srv.URL, time.Second).Wait(context.Background(), "stuff", 1, 5*time.Millisecond)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "SUCCESS", rv.Result)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestClient_Follow(t *testing.T) {
	t.Run("success - output reassembled until the end event", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/jobs/stuff/builds/2/console/sse", r.URL.Path)
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("event: output\ndata: one\ndata: \n\n" +
				"event: output\ndata: two\n\n" +
				"event: end\ndata: FAILURE\n\n"))
		}))
		defer srv.Close()
		out := new(bytes.Buffer)

		// act
		result, err := NewClient(srv.URL, time.Second).Follow(context.Background(), "stuff", 2, out)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "FAILURE", result)
		assert.Equal(t, "one\ntwo", out.String())
	})
	t.Run("failure - stream closed before completion", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("event: output\ndata: partial\n\n"))
		}))
		defer srv.Close()
		out := new(bytes.Buffer)

		// act
		_, err := NewClient(srv.URL, time.Second).Follow(context.Background(), "stuff", 2, out)

		// assert
		assert.ErrorContains(t, err, "ended before the build completed")
		assert.Equal(t, "partial", out.String())
	})
	t.Run("failure - missing console", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"console output not found"}`))
		}))
		defer srv.Close()

		// act
		_, err := NewClient(srv.URL, time.Second).Follow(context.Background(), "stuff", 2, new(bytes.Buffer))

		// assert
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	})
}

func TestAsk(t *testing.T) {
	t.Run("success - yes confirms", func(t *testing.T) {
		// arrange
		var out bytes.Buffer

		// act
		ok := ask(strings.NewReader("yes\n"), &out, "Delete stuff #1?")

		// assert
		assert.True(t, ok)
		assert.Equal(t, "Delete stuff #1? [y/N]: ", out.String())
	})
	t.Run("success - anything else declines", func(t *testing.T) {
		// act
		empty := ask(strings.NewReader("\n"), &bytes.Buffer{}, "?")
		no := ask(strings.NewReader("n\n"), &bytes.Buffer{}, "?")
		eof := ask(strings.NewReader(""), &bytes.Buffer{}, "?")

		// assert
		assert.False(t, empty)
		assert.False(t, no)
		assert.False(t, eof)
	})
}

func TestShowCmd(t *testing.T) {
	t.Run("success - build details printed", func(t *testing.T) {
		// arrange
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/jobs/up/builds/1", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"job":"up","number":1,"display_name":"up","status":"completed","result":"SUCCESS",
				"can_delete":false,"delete_reason":"kept because of down #1",
				"badges":[{"icon":"lock","tooltip":"kept because of down #1"},{"tooltip":"hidden"}],
				"downstream":[{"job":"down","number":1,"display_name":"down #1"}],
				"artifacts":[{"name":"app.jar","size":3}]
			}`))
		}))
		defer srv.Close()
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--server", srv.URL, "show", "up", "1"})

		// act
		err := cmd.Execute()

		// assert
		require.NoError(t, err)
		body := out.String()
		assert.Contains(t, body, "up #1\tcompleted\tSUCCESS")
		assert.Contains(t, body, "[lock] kept because of down #1")
		assert.NotContains(t, body, "hidden")
		assert.Contains(t, body, "downstream: down #1")
		assert.Contains(t, body, "artifact: app.jar (3 bytes)")
	})
	t.Run("failure - invalid build number", func(t *testing.T) {
		// arrange
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"show", "up", "first"})

		// act
		err := cmd.Execute()

		// assert
		assert.ErrorContains(t, err, `invalid build number "first"`)
	})
}
