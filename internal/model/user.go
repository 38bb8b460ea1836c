package model

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// IsStaff 教师与管理员可查看全部状态的数据
func (r UserRole) IsStaff() bool {
	return r == Teacher || r == Admin
}
