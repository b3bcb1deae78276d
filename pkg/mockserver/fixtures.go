package mockserver

import (
	"fmt"
	"strconv"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "123456"

type seedUser struct {
	id, username, name, studentID string
	classes                       []string
}

var seedUsers = []seedUser{
	{"1001", "2022001", "张三", "2021001", []string{"C001", "C002"}},
	{"1002", "student002", "李四", "2021002", []string{"C001", "C003"}},
	{"1003", "student003", "王五", "2021003", []string{"C002", "C003"}},
	{"1004", "student004", "赵六", "2021004", []string{"C001"}},
	{"1005", "student005", "钱七", "2021005", []string{"C002"}},
}

var seedLabels = map[string]Label{
	"L001": {LabelID: "L001", Name: "力学基础", Color: "#409eff"},
	"L002": {LabelID: "L002", Name: "静力学", Color: "#67c23a"},
	"L003": {LabelID: "L003", Name: "动力学", Color: "#e6a23c"},
	"L004": {LabelID: "L004", Name: "材料力学", Color: "#f56c6c"},
}

func labels(ids ...string) []Label {
	out := make([]Label, 0, len(ids))
	for _, id := range ids {
		out = append(out, seedLabels[id])
	}
	return out
}

// Seed fills db with the demo data set
func Seed(db *DB) error {
	hash, err := db.hash(DefaultPassword)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	for _, c := range []Class{
		{ClassID: "C001", ClassName: "2022级工程力学1班", CourseID: "COURSE001", CourseName: "工程力学", TeacherName: "李教授", StudentCount: 45},
		{ClassID: "C002", ClassName: "2022级工程力学2班", CourseID: "COURSE002", CourseName: "理论力学", TeacherName: "王教授", StudentCount: 42},
		{ClassID: "C003", ClassName: "2022级线性代数1班", CourseID: "COURSE003", CourseName: "线性代数", TeacherName: "张教授", StudentCount: 38},
		{ClassID: "C004", ClassName: "2022级程序设计1班", CourseID: "COURSE004", CourseName: "计算机程序设计", TeacherName: "刘教授", StudentCount: 50},
	} {
		c := c
		db.classes[c.ClassID] = &c
	}

	for _, su := range seedUsers {
		if _, exists := db.users[su.id]; exists {
			return fmt.Errorf("duplicate seed user %s", su.id)
		}
		db.users[su.id] = &User{
			UserID:       su.id,
			Username:     su.username,
			Name:         su.name,
			StudentID:    su.studentID,
			PasswordHash: hash,
			ClassIDs:     append([]string(nil), su.classes...),
		}
		if n, err := strconv.Atoi(su.id); err == nil && n > db.nextUserID {
			db.nextUserID = n
		}
	}

	for _, a := range []Assignment{
		{
			AssignmentID: "HW001",
			ClassID:      "C001",
			Title:        "第一章 静力学基础",
			Description:  "完成静力学相关计算题，巩固基础理论知识",
			Deadline:     "2024-06-24 23:59:59",
			CreatedAt:    "2024-03-20 10:00:00",
			Status:       "进行中",
			Questions: []Question{
				{QuestionID: "100001", Title: "杆件受力分析", Content: "分析图示杆件的受力情况，计算各个节点的受力大小和方向。", Type: "计算题", Difficulty: "中等", Labels: labels("L001", "L002")},
				{QuestionID: "100002", Title: "梁的弯曲变形计算", Content: "计算简支梁在集中载荷作用下的最大挠度和转角。", Type: "计算题", Difficulty: "困难", Labels: labels("L001", "L004")},
			},
		},
		{
			AssignmentID: "HW002",
			ClassID:      "C001",
			Title:        "第二章 动力学分析",
			Description:  "动力学运动方程建立与求解",
			Deadline:     "2024-06-24 23:59:59",
			CreatedAt:    "2024-03-25 14:30:00",
			Status:       "进行中",
			Questions: []Question{
				{QuestionID: "100003", Title: "动力学运动方程建立", Content: "建立质点在变力作用下的运动方程。", Type: "推导题", Difficulty: "中等", Labels: labels("L001", "L003")},
			},
		},
		{
			AssignmentID: "HW003",
			ClassID:      "C002",
			Title:        "第三章 桁架结构分析",
			Description:  "复杂桁架结构的内力分析方法",
			Deadline:     "2024-06-24 23:59:59",
			CreatedAt:    "2024-04-01 09:00:00",
			Status:       "进行中",
			Questions: []Question{
				{QuestionID: "100006", Title: "桁架结构内力分析", Content: "对图示桁架结构进行内力分析，求各杆件的内力。", Type: "计算题", Difficulty: "困难", Labels: labels("L001", "L002")},
			},
		},
	} {
		a := a
		db.assignments[a.AssignmentID] = &a
	}

	score := 92
	for _, s := range []Submission{
		{SubmissionID: "S001", AssignmentID: "HW001", AssignmentTitle: "第一章 静力学基础", QuestionID: "100001", UserID: "1001", SubmitTime: "2024-04-14 20:30:00", Status: "已提交", Files: []SubmittedFile{{Name: "answer1.jpg", Size: 204800}}},
		{SubmissionID: "S002", AssignmentID: "HW001", AssignmentTitle: "第一章 静力学基础", QuestionID: "100002", UserID: "1001", SubmitTime: "2024-04-15 09:10:00", Status: "已批改", Files: []SubmittedFile{{Name: "answer2.pdf", Size: 512000}}, Score: &score, Feedback: "推导过程清晰"},
	} {
		s := s
		db.submissions[s.SubmissionID] = &s
		db.nextSubmit++
	}
	return nil
}
