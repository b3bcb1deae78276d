package api_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/hwdesk/pkg/api"
	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/harun/hwdesk/pkg/mockserver"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/harun/hwdesk/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	client  *api.Client
	manager *session.Manager
	store   *store.MemoryStore
	clock   *clock
	backend *mockserver.Server
}

func newHarness(t *testing.T, authField string) *harness {
	t.Helper()
	backend, err := mockserver.New(mockserver.Config{Secret: "s", PasswordCost: bcrypt.MinCost}, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = backend.Stop(context.Background())
	})

	st := store.NewMemoryStore()
	c := &clock{now: time.Now()}
	mgr := session.NewManager(st, session.Options{TTL: time.Hour, Now: c.Now})
	gw, err := gateway.New(gateway.Config{BaseURL: ts.URL, Timeout: 2 * time.Second}, mgr)
	require.NoError(t, err)
	client, err := api.New(gw, mgr, api.Options{AuthField: authField})
	require.NoError(t, err)

	return &harness{client: client, manager: mgr, store: st, clock: c, backend: backend}
}

func TestNewRejectsUnknownAuthField(t *testing.T) {
	mgr := session.NewManager(store.NewMemoryStore(), session.Options{})
	gw, err := gateway.New(gateway.Config{BaseURL: "http://localhost"}, mgr)
	require.NoError(t, err)

	_, err = api.New(gw, mgr, api.Options{AuthField: "email"})
	assert.Error(t, err)

	c, err := api.New(gw, mgr, api.Options{})
	require.NoError(t, err)
	assert.Equal(t, api.AuthFieldUsername, c.AuthField())
}

func TestLoginInstallsSession(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	result, err := h.client.Login(ctx, "2022001", mockserver.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "1001", result.UserInfo.UserID)

	s := h.manager.Snapshot()
	assert.Equal(t, result.Token, s.Token)
	assert.Equal(t, "张三", s.DisplayName)
	assert.False(t, h.manager.IsExpired())

	token, ok, err := h.store.Get(ctx, store.KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Token, token)
}

func TestLoginWithStudentID(t *testing.T) {
	h := newHarness(t, api.AuthFieldStudentID)

	_, err := h.client.Login(context.Background(), "2021003", mockserver.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, "2021003", h.manager.Snapshot().StudentID)
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.client.Login(ctx, "", "x")
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = h.client.Login(ctx, "2022001", "wrong")
	require.Error(t, err)
	assert.Equal(t, "用户名或密码错误", err.Error())
	assert.False(t, h.manager.Snapshot().Authenticated())
}

func TestRegisterDuplicate(t *testing.T) {
	h := newHarness(t, "")

	err := h.client.Register(context.Background(), api.RegisterRequest{Username: "2022001", Password: "secret1"})
	var be *gateway.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 400, be.Code)
	assert.Equal(t, "用户名已存在", err.Error())

	err = h.client.Register(context.Background(), api.RegisterRequest{Username: "x", Password: "1"})
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, h.client.Register(context.Background(), api.RegisterRequest{Username: "fresh", Password: "secret1"}))
}

func TestHomeworkFlow(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	_, err := h.client.Login(ctx, "2022001", mockserver.DefaultPassword)
	require.NoError(t, err)

	user, err := h.client.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2022001", user.Username)

	classes, err := h.client.JoinedClasses(ctx)
	require.NoError(t, err)
	assert.Len(t, classes, 2)

	joined, err := h.client.JoinClass(ctx, "C004")
	require.NoError(t, err)
	assert.Equal(t, "C004", joined.ClassID)

	assignments, err := h.client.ClassAssignments(ctx, "C001")
	require.NoError(t, err)
	require.NotEmpty(t, assignments)

	detail, err := h.client.AssignmentDetail(ctx, assignments[0].AssignmentID)
	require.NoError(t, err)
	require.NotEmpty(t, detail.Questions)
	questionID := detail.Questions[0].QuestionID

	submission, err := h.client.SubmitAnswer(ctx, questionID, []gateway.File{
		{Name: "a.txt", Reader: strings.NewReader("answer")},
		{Name: "b.txt", Reader: strings.NewReader("more")},
	})
	require.NoError(t, err)
	assert.Len(t, submission.Files, 2)

	_, err = h.client.AskQuestion(ctx, questionID, "能否延期？")
	require.NoError(t, err)

	submissions, err := h.client.Submissions(ctx)
	require.NoError(t, err)
	assert.Len(t, submissions, 3)

	inquiry, err := h.client.AddSubmissionQuestion(ctx, submission.SubmissionID, "评分标准？")
	require.NoError(t, err)
	assert.Equal(t, "评分标准？", inquiry.Content)

	got, err := h.client.SubmissionDetail(ctx, submission.SubmissionID)
	require.NoError(t, err)
	assert.Len(t, got.Inquiries, 1)

	name := "张三丰"
	updated, err := h.client.UpdateProfile(ctx, api.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, name, h.manager.Snapshot().DisplayName)

	_, err = h.client.JoinClass(ctx, "C001")
	var be *gateway.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "已经加入过该班级", be.Message)
	assert.True(t, h.manager.Snapshot().Authenticated())
}

func TestLocallyExpiredSessionIsNotSent(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	_, err := h.client.Login(ctx, "2022001", mockserver.DefaultPassword)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	_, err = h.client.JoinedClasses(ctx)
	var expired *session.AuthExpiredError
	require.ErrorAs(t, err, &expired)
	assert.False(t, h.manager.Snapshot().Authenticated())
}

func TestServerRejectionClearsSession(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	h.manager.SetSession(ctx, session.Patch{
		UserID:   session.String("1001"),
		Username: session.String("2022001"),
		Token:    session.String("forged"),
	})

	var forced []session.ForceLogout
	h.manager.OnForceLogout(func(evt session.ForceLogout) { forced = append(forced, evt) })

	_, err := h.client.Submissions(ctx)
	var rejected *gateway.AuthRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.False(t, h.manager.Snapshot().Authenticated())
	require.Len(t, forced, 1)
	assert.Equal(t, session.ReasonRejected, forced[0].Reason)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	_, err := h.client.Login(ctx, "2022001", mockserver.DefaultPassword)
	require.NoError(t, err)

	h.client.Logout(ctx)
	h.client.Logout(ctx)
	assert.False(t, h.manager.Snapshot().Authenticated())
	assert.False(t, h.manager.HasStoredToken(ctx))
}
