package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminUser 表示可登录后台审核面板的管理员账号。
type AdminUser struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Candidate 表示一次公开表单提交。
// Seq 是插入顺序，也是游标分页的位置；记录删除后 Seq 不会被复用。
type Candidate struct {
	Seq             uint64 `gorm:"primaryKey;autoIncrement"`
	ID              string `gorm:"uniqueIndex;size:36;not null"`
	Name            string `gorm:"size:255;not null"`
	Email           string `gorm:"size:320;not null"`
	Phone           string `gorm:"size:64"`
	Instagram       string `gorm:"size:255;not null"`
	LinkedIn        string `gorm:"size:512"`
	ResumeURL       string `gorm:"size:1024"`
	ExperienceLevel string `gorm:"size:64"`
	Motivation      string `gorm:"type:text;not null"`
	DateIdea        string `gorm:"type:text"`
	Availability    string `gorm:"type:text"`
	CreatedAt       int64  `gorm:"autoCreateTime:milli;index"`
}

// ExportJob 记录一次后台全量导出任务。
type ExportJob struct {
	gorm.Model
	PublicID    string         `gorm:"uniqueIndex;size:36"`
	AdminUserID uint           `gorm:"index"`
	Query       datatypes.JSON `gorm:"type:jsonb"` // search 与 sort 参数
	Status      string         `gorm:"size:32"`
	ObjectKey   string         `gorm:"size:512"`
	RowCount    int
	Error       string `gorm:"size:512"`
}

// Export job statuses.
const (
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
	ExportStatusEmpty     = "empty"
)

// AutoMigrate 创建或更新所有表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AdminUser{}, &Candidate{}, &ExportJob{})
}
