package mockserver

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Username  string `json:"username" validate:"required_without=StudentID"`
	StudentID string `json:"studentId" validate:"required_without=Username"`
	Password  string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=32"`
	Password  string `json:"password" validate:"required,min=6,max=64"`
	Name      string `json:"name" validate:"max=32"`
	StudentID string `json:"studentId" validate:"omitempty,alphanum"`
}

type profileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=32"`
	Password *string `json:"password" validate:"omitempty,min=6,max=64"`
}

type joinRequest struct {
	ClassID string `json:"classId" validate:"required"`
}

type askRequest struct {
	QuestionID string `json:"questionId" validate:"required"`
	Content    string `json:"content" validate:"required,max=2000"`
}

type contentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.ok(w, r, "ok", map[string]interface{}{
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.StudentID
	}

	user, err := s.db.Authenticate(identifier, req.Password)
	if err != nil {
		s.fail(w, r, http.StatusOK, 401, "用户名或密码错误")
		return
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue token")
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("User logged in")
	s.ok(w, r, "登录成功", map[string]interface{}{
		"data": map[string]interface{}{
			"token":    token,
			"userInfo": user,
		},
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.db.CreateUser(req.Username, req.Password, req.Name, req.StudentID)
	if errors.Is(err, errUserExists) {
		s.fail(w, r, http.StatusOK, 400, "用户名已存在")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create user")
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
		return
	}

	s.logger.Info().Str("user_id", user.UserID).Msg("User registered")
	s.ok(w, r, "注册成功", nil)
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	user, err := s.db.User(currentUser(r))
	if err != nil {
		s.fail(w, r, http.StatusOK, 404, "用户不存在")
		return
	}
	s.ok(w, r, "成功", map[string]interface{}{"user": user})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == nil && req.Password == nil {
		s.fail(w, r, http.StatusOK, 400, "没有需要更新的内容")
		return
	}

	user, err := s.db.UpdateProfile(currentUser(r), req.Name, req.Password)
	if err != nil {
		s.fail(w, r, http.StatusOK, 404, "用户不存在")
		return
	}
	s.ok(w, r, "更新成功", map[string]interface{}{"data": user})
}

func (s *Server) handleJoinClass(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}

	class, err := s.db.JoinClass(currentUser(r), req.ClassID)
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "班级不存在")
	case errors.Is(err, errAlreadyJoined):
		s.fail(w, r, http.StatusOK, 400, "已经加入过该班级")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "加入班级成功", map[string]interface{}{"data": class})
	}
}

func (s *Server) handleJoinedClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.db.JoinedClasses(currentUser(r))
	if err != nil {
		s.fail(w, r, http.StatusOK, 404, "用户不存在")
		return
	}
	s.ok(w, r, "成功", map[string]interface{}{"data": classes})
}

func (s *Server) handleClassAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.db.ClassAssignments(currentUser(r), chi.URLParam(r, "classId"))
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "班级不存在")
	case errors.Is(err, errNotJoined):
		s.fail(w, r, http.StatusOK, 403, "未加入该班级")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "成功", map[string]interface{}{"data": assignments})
	}
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.db.Assignment(currentUser(r), chi.URLParam(r, "assignmentId"))
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "作业不存在")
	case errors.Is(err, errNotJoined):
		s.fail(w, r, http.StatusOK, 403, "未加入该班级")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "成功", map[string]interface{}{"data": assignment})
	}
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.fail(w, r, http.StatusOK, 400, "上传内容格式错误")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	questionID := r.FormValue("questionId")
	if questionID == "" {
		s.fail(w, r, http.StatusOK, 400, "缺少参数 questionId")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.fail(w, r, http.StatusOK, 400, "请选择要上传的文件")
		return
	}

	files := make([]SubmittedFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.fail(w, r, http.StatusOK, 400, "上传内容格式错误")
			return
		}
		n, err := io.Copy(io.Discard, f)
		f.Close()
		if err != nil {
			s.fail(w, r, http.StatusOK, 400, "上传内容格式错误")
			return
		}
		files = append(files, SubmittedFile{Name: fh.Filename, Size: n})
	}

	submission, err := s.db.Submit(currentUser(r), questionID, files)
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "题目不存在")
	case errors.Is(err, errNotJoined):
		s.fail(w, r, http.StatusOK, 403, "未加入该班级")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "提交成功", map[string]interface{}{"data": submission})
	}
}

func (s *Server) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	inquiry, err := s.db.Ask(currentUser(r), req.QuestionID, req.Content)
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "题目不存在")
	case errors.Is(err, errNotJoined):
		s.fail(w, r, http.StatusOK, 403, "未加入该班级")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "提问成功", map[string]interface{}{"data": inquiry})
	}
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	submissions := s.db.Submissions(currentUser(r))
	s.ok(w, r, "成功", map[string]interface{}{
		"rows":  submissions,
		"total": len(submissions),
	})
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.db.Submission(currentUser(r), chi.URLParam(r, "submissionId"))
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "提交记录不存在")
	case errors.Is(err, errForbidden):
		s.fail(w, r, http.StatusOK, 403, "无权查看该提交记录")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "成功", map[string]interface{}{"data": submission})
	}
}

func (s *Server) handleAddSubmissionQuestion(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}

	inquiry, err := s.db.AddSubmissionInquiry(currentUser(r), chi.URLParam(r, "submissionId"), req.Content)
	switch {
	case errors.Is(err, errNotFound):
		s.fail(w, r, http.StatusOK, 404, "提交记录不存在")
	case errors.Is(err, errForbidden):
		s.fail(w, r, http.StatusOK, 403, "无权操作该提交记录")
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, 500, "服务器内部错误")
	default:
		s.ok(w, r, "提问成功", map[string]interface{}{"data": inquiry})
	}
}
