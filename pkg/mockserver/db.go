package mockserver

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	errUserExists     = errors.New("user exists")
	errNotFound       = errors.New("not found")
	errAlreadyJoined  = errors.New("already joined")
	errNotJoined      = errors.New("not joined")
	errBadCredentials = errors.New("bad credentials")
	errForbidden      = errors.New("forbidden")
)

// DB is the backend's in-memory state. It is safe for concurrent use.
type DB struct {
	mu          sync.RWMutex
	cost        int
	now         func() time.Time
	nextUserID  int
	nextSubmit  int
	users       map[string]*User
	classes     map[string]*Class
	assignments map[string]*Assignment
	submissions map[string]*Submission
	inquiries   map[string][]Inquiry
}

// NewDB creates an empty database hashing passwords with cost
func NewDB(cost int) *DB {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &DB{
		cost:        cost,
		now:         time.Now,
		nextUserID:  1000,
		nextSubmit:  0,
		users:       make(map[string]*User),
		classes:     make(map[string]*Class),
		assignments: make(map[string]*Assignment),
		submissions: make(map[string]*Submission),
		inquiries:   make(map[string][]Inquiry),
	}
}

func (db *DB) stamp() string {
	return db.now().Format(timeLayout)
}

func (db *DB) hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), db.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// CreateUser adds an account. Usernames are unique.
func (db *DB) CreateUser(username, password, name, studentID string) (*User, error) {
	hash, err := db.hash(password)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Username == username {
			return nil, errUserExists
		}
	}
	db.nextUserID++
	if name == "" {
		name = username
	}
	u := &User{
		UserID:       strconv.Itoa(db.nextUserID),
		Username:     username,
		Name:         name,
		StudentID:    studentID,
		PasswordHash: hash,
	}
	db.users[u.UserID] = u
	return u, nil
}

// Authenticate finds the user whose username or student id is identifier
// and whose password matches.
func (db *DB) Authenticate(identifier, password string) (UserView, error) {
	db.mu.RLock()
	var found *User
	for _, u := range db.users {
		if u.Username == identifier || (u.StudentID != "" && u.StudentID == identifier) {
			found = u
			break
		}
	}
	var hash []byte
	if found != nil {
		hash = found.PasswordHash
	}
	db.mu.RUnlock()

	if found == nil {
		return UserView{}, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return UserView{}, errBadCredentials
	}
	return found.view(), nil
}

// User returns the public view of a user
func (db *DB) User(userID string) (UserView, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[userID]
	if !ok {
		return UserView{}, errNotFound
	}
	return u.view(), nil
}

// UpdateProfile changes the display name and/or password of a user
func (db *DB) UpdateProfile(userID string, name, password *string) (UserView, error) {
	var hash []byte
	if password != nil {
		h, err := db.hash(*password)
		if err != nil {
			return UserView{}, err
		}
		hash = h
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return UserView{}, errNotFound
	}
	if name != nil {
		u.Name = *name
	}
	if hash != nil {
		u.PasswordHash = hash
	}
	return u.view(), nil
}

// JoinClass adds the user to a class
func (db *DB) JoinClass(userID, classID string) (Class, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u, ok := db.users[userID]
	if !ok {
		return Class{}, errNotFound
	}
	c, ok := db.classes[classID]
	if !ok {
		return Class{}, errNotFound
	}
	for _, id := range u.ClassIDs {
		if id == classID {
			return Class{}, errAlreadyJoined
		}
	}
	u.ClassIDs = append(u.ClassIDs, classID)
	c.StudentCount++
	return *c, nil
}

// JoinedClasses lists the classes of a user
func (db *DB) JoinedClasses(userID string) ([]Class, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[userID]
	if !ok {
		return nil, errNotFound
	}
	out := make([]Class, 0, len(u.ClassIDs))
	for _, id := range u.ClassIDs {
		if c, ok := db.classes[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (db *DB) memberLocked(userID, classID string) bool {
	u, ok := db.users[userID]
	if !ok {
		return false
	}
	for _, id := range u.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// ClassAssignments lists assignments of a class the user has joined
func (db *DB) ClassAssignments(userID, classID string) ([]Assignment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, ok := db.classes[classID]; !ok {
		return nil, errNotFound
	}
	if !db.memberLocked(userID, classID) {
		return nil, errNotJoined
	}

	out := make([]Assignment, 0)
	for _, a := range db.assignments {
		if a.ClassID == classID {
			summary := *a
			summary.Questions = nil
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

// Assignment returns one assignment with its questions
func (db *DB) Assignment(userID, assignmentID string) (Assignment, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	a, ok := db.assignments[assignmentID]
	if !ok {
		return Assignment{}, errNotFound
	}
	if !db.memberLocked(userID, a.ClassID) {
		return Assignment{}, errNotJoined
	}
	out := *a
	out.Questions = append([]Question(nil), a.Questions...)
	return out, nil
}

func (db *DB) questionLocked(questionID string) (*Assignment, bool) {
	for _, a := range db.assignments {
		for _, q := range a.Questions {
			if q.QuestionID == questionID {
				return a, true
			}
		}
	}
	return nil, false
}

// Submit records an answer to a question
func (db *DB) Submit(userID, questionID string, files []SubmittedFile) (Submission, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.questionLocked(questionID)
	if !ok {
		return Submission{}, errNotFound
	}
	if !db.memberLocked(userID, a.ClassID) {
		return Submission{}, errNotJoined
	}

	db.nextSubmit++
	s := &Submission{
		SubmissionID:    fmt.Sprintf("S%03d", db.nextSubmit),
		AssignmentID:    a.AssignmentID,
		AssignmentTitle: a.Title,
		QuestionID:      questionID,
		UserID:          userID,
		SubmitTime:      db.stamp(),
		Status:          "已提交",
		Files:           files,
	}
	db.submissions[s.SubmissionID] = s
	return *s, nil
}

// Ask stores a question about a task
func (db *DB) Ask(userID, questionID, content string) (Inquiry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	a, ok := db.questionLocked(questionID)
	if !ok {
		return Inquiry{}, errNotFound
	}
	if !db.memberLocked(userID, a.ClassID) {
		return Inquiry{}, errNotJoined
	}
	inq := Inquiry{InquiryID: newID(), Content: content, CreatedAt: db.stamp()}
	db.inquiries[questionID] = append(db.inquiries[questionID], inq)
	return inq, nil
}

// Submissions lists a user's submissions, newest first
func (db *DB) Submissions(userID string) []Submission {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]Submission, 0)
	for _, s := range db.submissions {
		if s.UserID == userID {
			summary := *s
			summary.Inquiries = nil
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmitTime == out[j].SubmitTime {
			return out[i].SubmissionID > out[j].SubmissionID
		}
		return out[i].SubmitTime > out[j].SubmitTime
	})
	return out
}

// Submission returns one of the user's submissions
func (db *DB) Submission(userID, submissionID string) (Submission, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.submissions[submissionID]
	if !ok {
		return Submission{}, errNotFound
	}
	if s.UserID != userID {
		return Submission{}, errForbidden
	}
	out := *s
	out.Inquiries = append([]Inquiry(nil), s.Inquiries...)
	return out, nil
}

// AddSubmissionInquiry appends a question to a submission
func (db *DB) AddSubmissionInquiry(userID, submissionID, content string) (Inquiry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.submissions[submissionID]
	if !ok {
		return Inquiry{}, errNotFound
	}
	if s.UserID != userID {
		return Inquiry{}, errForbidden
	}
	inq := Inquiry{InquiryID: newID(), Content: content, CreatedAt: db.stamp()}
	s.Inquiries = append(s.Inquiries, inq)
	return inq, nil
}

func newID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}
