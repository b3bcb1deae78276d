package mockserver

// User is an account known to the backend
type User struct {
	UserID       string
	Username     string
	Name         string
	StudentID    string
	PasswordHash []byte
	ClassIDs     []string
}

// UserView is the public projection of a User
type UserView struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	StudentID string `json:"studentId,omitempty"`
}

func (u *User) view() UserView {
	return UserView{UserID: u.UserID, Username: u.Username, Name: u.Name, StudentID: u.StudentID}
}

// Class is a teaching class students can join
type Class struct {
	ClassID      string `json:"classId"`
	ClassName    string `json:"className"`
	CourseID     string `json:"courseId"`
	CourseName   string `json:"courseName"`
	TeacherName  string `json:"teacherName"`
	StudentCount int    `json:"studentCount"`
}

// Label tags a question
type Label struct {
	LabelID string `json:"labelId"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

// Question is one task inside an assignment
type Question struct {
	QuestionID string   `json:"questionId"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Difficulty string   `json:"difficulty"`
	ImageURLs  []string `json:"imageUrls,omitempty"`
	Labels     []Label  `json:"labels,omitempty"`
}

// Assignment is homework published to a class
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

// SubmittedFile describes one uploaded answer file
type SubmittedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Inquiry is a question a student asked about a task or a submission
type Inquiry struct {
	InquiryID string `json:"inquiryId"`
	Content   string `json:"content"`
	Reply     string `json:"reply,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Submission is a student's answer to one question
type Submission struct {
	SubmissionID    string          `json:"submissionId"`
	AssignmentID    string          `json:"assignmentId"`
	AssignmentTitle string          `json:"assignmentTitle"`
	QuestionID      string          `json:"questionId"`
	UserID          string          `json:"-"`
	SubmitTime      string          `json:"submitTime"`
	Status          string          `json:"status"`
	Files           []SubmittedFile `json:"files,omitempty"`
	Score           *int            `json:"score,omitempty"`
	Feedback        string          `json:"feedback,omitempty"`
	Inquiries       []Inquiry       `json:"inquiries,omitempty"`
}
