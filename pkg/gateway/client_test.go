package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harun/hwdesk/pkg/session"
	"github.com/harun/hwdesk/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, token string) *session.Manager {
	t.Helper()
	mgr := session.NewManager(store.NewMemoryStore(), session.Options{TTL: time.Hour})
	if token != "" {
		mgr.SetSession(context.Background(), session.Patch{
			UserID:   session.String("1001"),
			Username: session.String("2022001"),
			Token:    session.String(token),
		})
	}
	return mgr
}

func newTestClient(t *testing.T, handler http.HandlerFunc, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL + "/api", Timeout: time.Second}, creds)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNew(t *testing.T) {
	mgr := newSession(t, "")

	t.Run("requires credentials", func(t *testing.T) {
		_, err := New(Config{BaseURL: "http://localhost"}, nil)
		assert.Error(t, err)
	})

	t.Run("requires base URL", func(t *testing.T) {
		_, err := New(Config{}, mgr)
		assert.Error(t, err)
	})

	t.Run("rejects non-http scheme", func(t *testing.T) {
		_, err := New(Config{BaseURL: "ftp://example.com"}, mgr)
		assert.Error(t, err)
	})

	t.Run("applies default timeout", func(t *testing.T) {
		c, err := New(Config{BaseURL: "http://localhost:8080/api"}, mgr)
		require.NoError(t, err)
		assert.Equal(t, DefaultTimeout, c.timeout)
	})
}

func TestDoUnwrapsSuccess(t *testing.T) {
	mgr := newSession(t, "")
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeJSON(w, http.StatusOK, `{"code":200,"message":"ok","data":{"x":1}}`)
	}, mgr)

	resp, err := client.Get(context.Background(), "/thing", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/thing", gotPath)
	assert.True(t, resp.HasData())
	assert.NotEmpty(t, resp.RequestID)

	var data struct {
		X int `json:"x"`
	}
	require.NoError(t, resp.Decode(&data))
	assert.Equal(t, 1, data.X)
}

func TestDoBusinessFailure(t *testing.T) {
	mgr := newSession(t, "")
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":400,"message":"用户名已存在"}`)
	}, mgr)

	_, err := client.Post(context.Background(), "/register", map[string]string{"username": "taken"})
	require.Error(t, err)

	var be *BusinessError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 400, be.Code)
	assert.Equal(t, "用户名已存在", err.Error())
	assert.Equal(t, OutcomeBusiness, Classify(err))
}

func TestDoInvalidEnvelope(t *testing.T) {
	mgr := newSession(t, "tok")

	for name, body := range map[string]string{
		"not json":     `<html>oops</html>`,
		"missing code": `{"message":"hi"}`,
		"string code":  `{"code":"200"}`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadGateway, body)
			}, mgr)

			_, err := client.Get(context.Background(), "/x", nil)
			var be *BusinessError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, http.StatusBadGateway, be.Code)
			assert.Equal(t, "tok", mgr.Token(), "session must survive non-auth failures")
		})
	}
}

func TestDoFailedStatusIsNotSuccess(t *testing.T) {
	mgr := newSession(t, "tok")

	tests := []struct {
		name    string
		status  int
		body    string
		code    int
		message string
	}{
		{"success envelope on 500", http.StatusInternalServerError, `{"code":200,"message":"成功","data":{}}`, http.StatusInternalServerError, "unexpected HTTP status 500"},
		{"server message kept", http.StatusInternalServerError, `{"code":500,"message":"服务器内部错误"}`, 500, "服务器内部错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}, mgr)

			resp, err := client.Get(context.Background(), "/x", nil)
			assert.Nil(t, resp)
			var be *BusinessError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.code, be.Code)
			assert.Equal(t, tt.message, be.Message)
			assert.Equal(t, tt.status, be.HTTPStatus)
			assert.Equal(t, "tok", mgr.Token())
		})
	}
}

func TestDoAttachesBearerToken(t *testing.T) {
	t.Run("with token", func(t *testing.T) {
		mgr := newSession(t, "abc")
		var header, requestID string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			header = r.Header.Get("Authorization")
			requestID = r.Header.Get("X-Request-ID")
			writeJSON(w, http.StatusOK, `{"code":200}`)
		}, mgr)

		_, err := client.Get(context.Background(), "/x", nil)
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc", header)
		assert.NotEmpty(t, requestID)
	})

	t.Run("without token", func(t *testing.T) {
		mgr := newSession(t, "")
		var present bool
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, present = r.Header["Authorization"]
			writeJSON(w, http.StatusOK, `{"code":200}`)
		}, mgr)

		_, err := client.Get(context.Background(), "/x", nil)
		require.NoError(t, err)
		assert.False(t, present)
	})
}

func TestDoAuthRejection(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"envelope code 401": {status: http.StatusOK, body: `{"code":401,"message":"登录已过期"}`},
		"http 401":          {status: http.StatusUnauthorized, body: `{"code":401,"message":"unauthorized"}`},
		"http 401 no body":  {status: http.StatusUnauthorized, body: ``},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			mgr := newSession(t, "stale")
			var forced []session.ForceLogout
			mgr.OnForceLogout(func(evt session.ForceLogout) { forced = append(forced, evt) })

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}, mgr)

			var events []AuthFailure
			client.OnAuthFailure(func(evt AuthFailure) {
				assert.Empty(t, mgr.Token(), "session is cleared before subscribers run")
				events = append(events, evt)
			})

			_, err := client.Get(context.Background(), "/classes", nil)
			var ae *AuthRejectedError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, OutcomeAuth, Classify(err))

			assert.Empty(t, mgr.Token())
			assert.False(t, mgr.Snapshot().Authenticated())
			require.Len(t, events, 1)
			assert.Equal(t, "/classes", events[0].Path)
			assert.True(t, events[0].Cleared)
			assert.NotZero(t, events[0].Seq)
			require.Len(t, forced, 1)
			assert.Equal(t, session.ReasonRejected, forced[0].Reason)
		})
	}
}

func TestDoConcurrentRejectionsClearOnce(t *testing.T) {
	mgr := newSession(t, "stale")
	var forced int32
	mgr.OnForceLogout(func(session.ForceLogout) { atomic.AddInt32(&forced, 1) })

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":401,"message":"expired"}`)
	}, mgr)

	var cleared int32
	client.OnAuthFailure(func(evt AuthFailure) {
		if evt.Cleared {
			atomic.AddInt32(&cleared, 1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), "/x", nil)
			assert.Equal(t, OutcomeAuth, Classify(err))
		}()
	}
	wg.Wait()

	assert.Empty(t, mgr.Token())
	assert.Equal(t, int32(1), atomic.LoadInt32(&cleared))
	assert.Equal(t, int32(1), atomic.LoadInt32(&forced))
}

func TestDoTransportFailure(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		mgr := newSession(t, "tok")
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client, err := New(Config{BaseURL: url, Timeout: time.Second}, mgr)
		require.NoError(t, err)

		_, err = client.Get(context.Background(), "/x", nil)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, OutcomeTransport, Classify(err))
		assert.Equal(t, "tok", mgr.Token())
	})

	t.Run("timeout", func(t *testing.T) {
		mgr := newSession(t, "tok")
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			srv.Close()
		})

		client, err := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, mgr)
		require.NoError(t, err)

		_, err = client.Get(context.Background(), "/slow", nil)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.Timeout())
		assert.Equal(t, "tok", mgr.Token())
	})
}

func TestUpload(t *testing.T) {
	mgr := newSession(t, "tok")
	var fields map[string]string
	var fileName, fileBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{
			"assignmentId": r.FormValue("assignmentId"),
			"questionId":   r.FormValue("questionId"),
		}
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		fileName = hdr.Filename
		fileBody = string(data)
		writeJSON(w, http.StatusOK, `{"code":200,"message":"提交成功"}`)
	}, mgr)

	resp, err := client.Upload(context.Background(), "/submit", map[string]string{
		"assignmentId": "7",
		"questionId":   "3",
	}, []File{{Name: "answer.txt", Reader: strings.NewReader("42")}})
	require.NoError(t, err)
	assert.Equal(t, "提交成功", resp.Message)
	assert.Equal(t, "7", fields["assignmentId"])
	assert.Equal(t, "3", fields["questionId"])
	assert.Equal(t, "answer.txt", fileName)
	assert.Equal(t, "42", fileBody)

	_, err = client.Upload(context.Background(), "/submit", nil, nil)
	assert.Error(t, err)
}

func TestEventBroadcasterUnsubscribe(t *testing.T) {
	b := NewEventBroadcaster()
	var calls int
	unsubscribe := b.Subscribe(func(AuthFailure) { calls++ })

	b.Broadcast(AuthFailure{Path: "/a"})
	unsubscribe()
	b.Broadcast(AuthFailure{Path: "/b"})

	assert.Equal(t, 1, calls)
}
