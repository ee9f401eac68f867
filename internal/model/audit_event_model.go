package model

// AuditEvent is an append-only record of a state-changing operation.
// Failures carry a distinct action name so monitoring can alert on them
// without parsing the outcome field.
type AuditEvent struct {
	ID        string `gorm:"column:id;primaryKey"`
	Action    string `gorm:"column:action;not null"`
	Actor     string `gorm:"column:actor"`
	Resource  string `gorm:"column:resource"`
	Outcome   string `gorm:"column:outcome;not null"`
	Detail    string `gorm:"column:detail"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
