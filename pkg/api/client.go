package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/rs/zerolog/log"
)

const (
	AuthFieldUsername  = "username"
	AuthFieldStudentID = "studentId"
)

// Options configures a Client
type Options struct {
	// AuthField names the login identifier field sent to the backend.
	AuthField string
}

// Client is the typed homework API. Every call goes through the gateway.
type Client struct {
	gw        *gateway.Client
	sessions  *session.Manager
	authField string
	validate  *validator.Validate
}

// New creates an API client
func New(gw *gateway.Client, sessions *session.Manager, opts Options) (*Client, error) {
	if gw == nil || sessions == nil {
		return nil, errors.New("gateway and session manager are required")
	}
	switch opts.AuthField {
	case "":
		opts.AuthField = AuthFieldUsername
	case AuthFieldUsername, AuthFieldStudentID:
	default:
		return nil, fmt.Errorf("unsupported auth field %q", opts.AuthField)
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Client{gw: gw, sessions: sessions, authField: opts.AuthField, validate: v}, nil
}

// AuthField returns the login identifier field name
func (c *Client) AuthField() string {
	return c.authField
}

// Gateway returns the underlying request gateway
func (c *Client) Gateway() *gateway.Client {
	return c.gw
}

// Login authenticates and installs the returned token in the session
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, &ValidationError{Field: c.authField, Message: "identifier and password are required"}
	}

	resp, err := c.gw.Post(ctx, "/login", map[string]string{
		c.authField: identifier,
		"password":  password,
	})
	if err != nil {
		return nil, err
	}

	var result LoginResult
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, errors.New("login response carried no token")
	}

	patch := session.Patch{
		UserID:      session.String(result.UserInfo.UserID),
		Username:    session.String(result.UserInfo.Username),
		DisplayName: session.String(result.UserInfo.Name),
		Token:       session.String(result.Token),
	}
	if result.UserInfo.StudentID != "" {
		patch.StudentID = session.String(result.UserInfo.StudentID)
	} else if c.authField == AuthFieldStudentID {
		patch.StudentID = session.String(identifier)
	}
	c.sessions.SetSession(ctx, patch)

	log.Info().Str("username", result.UserInfo.Username).Msg("Logged in")
	return &result, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	if err := c.check(req); err != nil {
		return err
	}
	_, err := c.gw.Post(ctx, "/register", req)
	return err
}

// Logout clears the local session
func (c *Client) Logout(ctx context.Context) {
	c.sessions.Clear(ctx)
}

// GetInfo fetches the profile and merges it into the session
func (c *Client) GetInfo(ctx context.Context) (UserInfo, error) {
	var user UserInfo
	if err := c.authorized(ctx); err != nil {
		return user, err
	}
	resp, err := c.gw.Get(ctx, "/getInfo", nil)
	if err != nil {
		return user, err
	}
	if err := resp.DecodeField("user", &user); err != nil {
		return user, err
	}
	c.mergeProfile(ctx, user)
	return user, nil
}

// UpdateProfile changes the display name and/or password
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (UserInfo, error) {
	var user UserInfo
	if update.Name == nil && update.Password == nil {
		return user, &ValidationError{Message: "nothing to update"}
	}
	if err := c.check(update); err != nil {
		return user, err
	}
	if err := c.authorized(ctx); err != nil {
		return user, err
	}
	resp, err := c.gw.Put(ctx, "/user/profile", update)
	if err != nil {
		return user, err
	}
	if resp.HasData() {
		if err := resp.Decode(&user); err != nil {
			return user, err
		}
		c.mergeProfile(ctx, user)
	} else if update.Name != nil {
		c.sessions.SetSession(ctx, session.Patch{DisplayName: update.Name})
	}
	return user, nil
}

// JoinClass joins the class with classID
func (c *Client) JoinClass(ctx context.Context, classID string) (Class, error) {
	var class Class
	if strings.TrimSpace(classID) == "" {
		return class, &ValidationError{Field: "classId", Message: "class id is required"}
	}
	err := c.post(ctx, "/class/join", map[string]string{"classId": classID}, &class)
	return class, err
}

// JoinedClasses lists the classes the user belongs to
func (c *Client) JoinedClasses(ctx context.Context) ([]Class, error) {
	var classes []Class
	err := c.get(ctx, "/class/joined", &classes)
	return classes, err
}

// ClassAssignments lists a class's assignments
func (c *Client) ClassAssignments(ctx context.Context, classID string) ([]Assignment, error) {
	var assignments []Assignment
	err := c.get(ctx, "/assignments/"+url.PathEscape(classID), &assignments)
	return assignments, err
}

// AssignmentDetail fetches an assignment and its questions
func (c *Client) AssignmentDetail(ctx context.Context, assignmentID string) (Assignment, error) {
	var assignment Assignment
	err := c.get(ctx, "/assignment/"+url.PathEscape(assignmentID), &assignment)
	return assignment, err
}

// SubmitAnswer uploads answer files for a question
func (c *Client) SubmitAnswer(ctx context.Context, questionID string, files []gateway.File) (Submission, error) {
	var submission Submission
	if strings.TrimSpace(questionID) == "" {
		return submission, &ValidationError{Field: "questionId", Message: "question id is required"}
	}
	if len(files) == 0 {
		return submission, &ValidationError{Field: "files", Message: "at least one file is required"}
	}
	if err := c.authorized(ctx); err != nil {
		return submission, err
	}
	resp, err := c.gw.Upload(ctx, "/assignment/submit", map[string]string{"questionId": questionID}, files)
	if err != nil {
		return submission, err
	}
	if resp.HasData() {
		err = resp.Decode(&submission)
	}
	return submission, err
}

// AskQuestion asks the teacher about a question
func (c *Client) AskQuestion(ctx context.Context, questionID, content string) (Inquiry, error) {
	var inquiry Inquiry
	if strings.TrimSpace(questionID) == "" || strings.TrimSpace(content) == "" {
		return inquiry, &ValidationError{Field: "content", Message: "question id and content are required"}
	}
	err := c.post(ctx, "/assignment/question", map[string]string{"questionId": questionID, "content": content}, &inquiry)
	return inquiry, err
}

// Submissions lists the user's submissions
func (c *Client) Submissions(ctx context.Context) ([]Submission, error) {
	var submissions []Submission
	if err := c.authorized(ctx); err != nil {
		return nil, err
	}
	resp, err := c.gw.Get(ctx, "/submissions", nil)
	if err != nil {
		return nil, err
	}
	if resp.HasData() {
		err = resp.Decode(&submissions)
	} else {
		err = resp.DecodeField("rows", &submissions)
	}
	return submissions, err
}

// SubmissionDetail fetches one submission
func (c *Client) SubmissionDetail(ctx context.Context, submissionID string) (Submission, error) {
	var submission Submission
	err := c.get(ctx, "/submission/"+url.PathEscape(submissionID), &submission)
	return submission, err
}

// AddSubmissionQuestion asks about a graded submission
func (c *Client) AddSubmissionQuestion(ctx context.Context, submissionID, content string) (Inquiry, error) {
	var inquiry Inquiry
	if strings.TrimSpace(content) == "" {
		return inquiry, &ValidationError{Field: "content", Message: "content is required"}
	}
	err := c.post(ctx, "/submission/"+url.PathEscape(submissionID)+"/question", map[string]string{"content": content}, &inquiry)
	return inquiry, err
}

// authorized refuses to send when the local session has gone stale. The
// session is cleared by CheckExpiry in that case.
func (c *Client) authorized(ctx context.Context) error {
	return c.sessions.CheckExpiry(ctx)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.authorized(ctx); err != nil {
		return err
	}
	resp, err := c.gw.Get(ctx, path, nil)
	if err != nil {
		return err
	}
	if !resp.HasData() {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	if err := c.authorized(ctx); err != nil {
		return err
	}
	resp, err := c.gw.Post(ctx, path, body)
	if err != nil {
		return err
	}
	if out == nil || !resp.HasData() {
		return nil
	}
	return resp.Decode(out)
}

func (c *Client) mergeProfile(ctx context.Context, user UserInfo) {
	patch := session.Patch{}
	if user.UserID != "" {
		patch.UserID = session.String(user.UserID)
	}
	if user.Username != "" {
		patch.Username = session.String(user.Username)
	}
	if user.Name != "" {
		patch.DisplayName = session.String(user.Name)
	}
	if user.StudentID != "" {
		patch.StudentID = session.String(user.StudentID)
	}
	c.sessions.SetSession(ctx, patch)
}

func (c *Client) check(v interface{}) error {
	if err := c.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Message: fmt.Sprintf("failed %q rule", fe.Tag())}
		}
		return err
	}
	return nil
}
