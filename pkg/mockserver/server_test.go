package mockserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	User    json.RawMessage `json:"user"`
	Rows    json.RawMessage `json:"rows"`
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.PasswordCost == 0 {
		cfg.PasswordCost = bcrypt.MinCost
	}
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	srv, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.limiter.Stop()
	})
	return srv, ts
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func login(t *testing.T, ts *httptest.Server, body map[string]string) string {
	t.Helper()
	_, env := call(t, ts, http.MethodPost, "/login", "", body)
	require.Equal(t, 200, env.Code, env.Message)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestLogin(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	t.Run("by username", func(t *testing.T) {
		_, env := call(t, ts, http.MethodPost, "/login", "", map[string]string{"username": "2022001", "password": DefaultPassword})
		require.Equal(t, 200, env.Code)
		assert.Equal(t, "登录成功", env.Message)

		var data struct {
			Token    string   `json:"token"`
			UserInfo UserView `json:"userInfo"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "1001", data.UserInfo.UserID)
		assert.Equal(t, "张三", data.UserInfo.Name)
	})

	t.Run("by student id", func(t *testing.T) {
		token := login(t, ts, map[string]string{"studentId": "2021002", "password": DefaultPassword})
		assert.NotEmpty(t, token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, env := call(t, ts, http.MethodPost, "/login", "", map[string]string{"username": "2022001", "password": "nope"})
		assert.Equal(t, 401, env.Code)
		assert.Equal(t, "用户名或密码错误", env.Message)
	})

	t.Run("missing identifier", func(t *testing.T) {
		_, env := call(t, ts, http.MethodPost, "/login", "", map[string]string{"password": "x"})
		assert.Equal(t, 400, env.Code)
	})
}

func TestRegister(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	_, env := call(t, ts, http.MethodPost, "/register", "", map[string]string{"username": "2022001", "password": "secret1"})
	assert.Equal(t, 400, env.Code)
	assert.Equal(t, "用户名已存在", env.Message)

	_, env = call(t, ts, http.MethodPost, "/register", "", map[string]string{"username": "newbie", "password": "secret1", "name": "新人"})
	require.Equal(t, 200, env.Code)
	assert.Equal(t, "注册成功", env.Message)

	token := login(t, ts, map[string]string{"username": "newbie", "password": "secret1"})
	_, env = call(t, ts, http.MethodGet, "/getInfo", token, nil)
	require.Equal(t, 200, env.Code)
	var user UserView
	require.NoError(t, json.Unmarshal(env.User, &user))
	assert.Equal(t, "新人", user.Name)

	_, env = call(t, ts, http.MethodPost, "/register", "", map[string]string{"username": "ab", "password": "1"})
	assert.Equal(t, 400, env.Code)
}

func TestAuthentication(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	t.Run("missing token is HTTP 401", func(t *testing.T) {
		status, env := call(t, ts, http.MethodGet, "/getInfo", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, 401, env.Code)
	})

	t.Run("bad token is envelope 401", func(t *testing.T) {
		status, env := call(t, ts, http.MethodGet, "/class/joined", "garbage", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, 401, env.Code)
	})

	t.Run("expired token is envelope 401", func(t *testing.T) {
		past := time.Now().Add(-48 * time.Hour)
		srv.tokens.now = func() time.Time { return past }
		token, err := srv.tokens.Issue(UserView{UserID: "1001", Username: "2022001"})
		srv.tokens.now = time.Now
		require.NoError(t, err)

		_, env := call(t, ts, http.MethodGet, "/getInfo", token, nil)
		assert.Equal(t, 401, env.Code)
	})
}

func TestClassesAndAssignments(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	token := login(t, ts, map[string]string{"username": "2022001", "password": DefaultPassword})

	_, env := call(t, ts, http.MethodGet, "/class/joined", token, nil)
	require.Equal(t, 200, env.Code)
	var classes []Class
	require.NoError(t, json.Unmarshal(env.Data, &classes))
	assert.Len(t, classes, 2)

	_, env = call(t, ts, http.MethodPost, "/class/join", token, map[string]string{"classId": "C001"})
	assert.Equal(t, 400, env.Code)
	assert.Equal(t, "已经加入过该班级", env.Message)

	_, env = call(t, ts, http.MethodPost, "/class/join", token, map[string]string{"classId": "C999"})
	assert.Equal(t, 404, env.Code)

	_, env = call(t, ts, http.MethodPost, "/class/join", token, map[string]string{"classId": "C003"})
	assert.Equal(t, 200, env.Code)

	_, env = call(t, ts, http.MethodGet, "/assignments/C001", token, nil)
	require.Equal(t, 200, env.Code)
	var assignments []Assignment
	require.NoError(t, json.Unmarshal(env.Data, &assignments))
	require.Len(t, assignments, 2)
	assert.Equal(t, "HW001", assignments[0].AssignmentID)
	assert.Empty(t, assignments[0].Questions)

	_, env = call(t, ts, http.MethodGet, "/assignment/HW001", token, nil)
	require.Equal(t, 200, env.Code)
	var detail Assignment
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Len(t, detail.Questions, 2)

	_, env = call(t, ts, http.MethodGet, "/assignment/HW999", token, nil)
	assert.Equal(t, 404, env.Code)

	other := login(t, ts, map[string]string{"username": "student005", "password": DefaultPassword})
	_, env = call(t, ts, http.MethodGet, "/assignments/C001", other, nil)
	assert.Equal(t, 403, env.Code)
}

func TestSubmitAndSubmissions(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	token := login(t, ts, map[string]string{"username": "2022001", "password": DefaultPassword})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("questionId", "100003"))
	part, err := w.CreateFormFile("files", "answer.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("x = v0 t"))
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/assignment/submit", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	require.Equal(t, 200, env.Code, env.Message)
	var submission Submission
	require.NoError(t, json.Unmarshal(env.Data, &submission))
	assert.Equal(t, "HW002", submission.AssignmentID)
	require.Len(t, submission.Files, 1)
	assert.Equal(t, int64(8), submission.Files[0].Size)

	_, env = call(t, ts, http.MethodGet, "/submissions", token, nil)
	require.Equal(t, 200, env.Code)
	var rows []Submission
	require.NoError(t, json.Unmarshal(env.Rows, &rows))
	assert.Len(t, rows, 3)

	_, env = call(t, ts, http.MethodPost, "/submission/"+submission.SubmissionID+"/question", token, map[string]string{"content": "为什么扣分？"})
	require.Equal(t, 200, env.Code)

	_, env = call(t, ts, http.MethodGet, "/submission/"+submission.SubmissionID, token, nil)
	require.Equal(t, 200, env.Code)
	var detail Submission
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.Len(t, detail.Inquiries, 1)
	assert.Equal(t, "为什么扣分？", detail.Inquiries[0].Content)

	other := login(t, ts, map[string]string{"username": "student002", "password": DefaultPassword})
	_, env = call(t, ts, http.MethodGet, "/submission/"+submission.SubmissionID, other, nil)
	assert.Equal(t, 403, env.Code)

	_, env = call(t, ts, http.MethodPost, "/assignment/question", token, map[string]string{"questionId": "100001", "content": "第二问的边界条件？"})
	assert.Equal(t, 200, env.Code)
}

func TestUpdateProfile(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	token := login(t, ts, map[string]string{"username": "student003", "password": DefaultPassword})

	_, env := call(t, ts, http.MethodPut, "/user/profile", token, map[string]string{})
	assert.Equal(t, 400, env.Code)

	_, env = call(t, ts, http.MethodPut, "/user/profile", token, map[string]string{"name": "王五五", "password": "newpass1"})
	require.Equal(t, 200, env.Code)

	login(t, ts, map[string]string{"username": "student003", "password": "newpass1"})
}

func TestRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		status, _ := call(t, ts, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, status)
	}
	status, env := call(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, 429, env.Code)
}

func TestNotFoundAndMetrics(t *testing.T) {
	_, ts := newTestServer(t, Config{Empty: true})

	status, env := call(t, ts, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 404, env.Code)

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.True(t, strings.Contains(buf.String(), "hwdesk_mock_backend_requests_total"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 60, rl.RetryAfter("a"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.cleanup()
	assert.Len(t, rl.limits, 1)
}

func TestTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer(nil, time.Hour, "x")
	assert.Error(t, err)

	issuer, err := NewTokenIssuer([]byte("k"), time.Hour, "hwdesk-mock")
	require.NoError(t, err)
	token, err := issuer.Issue(UserView{UserID: "1001", Username: "2022001"})
	require.NoError(t, err)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "1001", claims.UID)

	other, err := NewTokenIssuer([]byte("other"), time.Hour, "hwdesk-mock")
	require.NoError(t, err)
	_, err = other.Parse(token)
	assert.Error(t, err)
}
