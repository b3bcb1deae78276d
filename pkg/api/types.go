package api

// UserInfo is the profile returned by login and getInfo
type UserInfo struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	StudentID string `json:"studentId,omitempty"`
}

// LoginResult is the data member of a successful login
type LoginResult struct {
	Token    string   `json:"token"`
	UserInfo UserInfo `json:"userInfo"`
}

// RegisterRequest creates an account
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=32"`
	Password  string `json:"password" validate:"required,min=6,max=64"`
	Name      string `json:"name,omitempty" validate:"max=32"`
	StudentID string `json:"studentId,omitempty" validate:"omitempty,alphanum"`
}

// ProfileUpdate changes the display name and/or password. Nil fields are
// left unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=32"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6,max=64"`
}

type Class struct {
	ClassID      string `json:"classId"`
	ClassName    string `json:"className"`
	CourseID     string `json:"courseId"`
	CourseName   string `json:"courseName"`
	TeacherName  string `json:"teacherName"`
	StudentCount int    `json:"studentCount"`
}

type Label struct {
	LabelID string `json:"labelId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

type Question struct {
	QuestionID string   `json:"questionId"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Difficulty string   `json:"difficulty"`
	ImageURLs  []string `json:"imageUrls,omitempty"`
	Labels     []Label  `json:"labels,omitempty"`
}

type Assignment struct {
	AssignmentID string     `json:"assignmentId"`
	ClassID      string     `json:"classId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Deadline     string     `json:"deadline"`
	CreatedAt    string     `json:"createdAt"`
	Status       string     `json:"status"`
	Questions    []Question `json:"questions,omitempty"`
}

type SubmittedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Inquiry is a question asked about a task or a submission
type Inquiry struct {
	InquiryID string `json:"inquiryId"`
	Content   string `json:"content"`
	Reply     string `json:"reply,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type Submission struct {
	SubmissionID    string          `json:"submissionId"`
	AssignmentID    string          `json:"assignmentId"`
	AssignmentTitle string          `json:"assignmentTitle"`
	QuestionID      string          `json:"questionId"`
	SubmitTime      string          `json:"submitTime"`
	Status          string          `json:"status"`
	Files           []SubmittedFile `json:"files,omitempty"`
	Score           *int            `json:"score,omitempty"`
	Feedback        string          `json:"feedback,omitempty"`
	Inquiries       []Inquiry       `json:"inquiries,omitempty"`
}
