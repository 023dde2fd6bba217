package task

import (
	"time"

	"github.com/example/task-tracker/domain/user"
)

// Task is a unit of work owned by exactly one user.
type Task struct {
	ID          string          `gorm:"primaryKey;type:text" json:"id"`
	UserID      string          `gorm:"not null;type:text;index:idx_tasks_owner_state" json:"userId"`
	Owner       *user.User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Name        string          `gorm:"not null;type:text" json:"name"`
	Comment     string          `gorm:"not null;type:text" json:"comment"`
	Checklist   []ChecklistItem `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"checklist"`
	Completed   bool            `gorm:"not null;index:idx_tasks_owner_state" json:"completed"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt"`
}

// TableName returns the table name for the Task entity.
func (Task) TableName() string {
	return "tasks"
}

// ChecklistItem is one entry of a task's checklist. Position keeps the
// client-supplied order.
type ChecklistItem struct {
	TaskID   string `gorm:"primaryKey;type:text" json:"-"`
	ID       string `gorm:"primaryKey;type:text" json:"id"`
	Position int    `gorm:"not null" json:"-"`
	Text     string `gorm:"not null;type:text" json:"text"`
	Checked  bool   `gorm:"not null" json:"checked"`
}

// TableName returns the table name for the ChecklistItem entity.
func (ChecklistItem) TableName() string {
	return "checklist_items"
}

// Patch is a partial update. Nil fields are left untouched; a non-nil
// Checklist replaces the whole list.
type Patch struct {
	Name      *string          `json:"name,omitempty"`
	Comment   *string          `json:"comment,omitempty"`
	Checklist *[]ChecklistItem `json:"checklist,omitempty"`
	Completed *bool            `json:"completed,omitempty"`
}

// Transition describes how a Patch moved a task between states.
type Transition int

const (
	Unchanged Transition = iota
	MarkedCompleted
	Reopened
)

// Apply merges p into t at time now. CompletedAt is stamped only when the
// task moves from pending to completed and cleared when it moves back.
func (t *Task) Apply(p Patch, now time.Time) Transition {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Comment != nil {
		t.Comment = *p.Comment
	}
	if p.Checklist != nil {
		t.Checklist = *p.Checklist
	}
	t.UpdatedAt = now

	if p.Completed == nil || *p.Completed == t.Completed {
		return Unchanged
	}
	t.Completed = *p.Completed
	if t.Completed {
		stamp := now
		t.CompletedAt = &stamp
		return MarkedCompleted
	}
	t.CompletedAt = nil
	return Reopened
}

// Normalize fixes positions and owner references of the checklist so it can
// be stored as-is.
func (t *Task) Normalize() {
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}
	for i := range t.Checklist {
		t.Checklist[i].TaskID = t.ID
		t.Checklist[i].Position = i
	}
}
