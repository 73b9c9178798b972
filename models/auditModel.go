package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Audit actions.
const (
	AuditRoleGroupsSynced      = "role_groups_synced"
	AuditRoleDerivedFromGroups = "role_derived_from_groups"
	AuditElevatedGranted       = "elevated_privileges_granted"
	AuditUserCreated           = "user_created"
	AuditUserRoleChanged       = "user_role_changed"
	AuditUserGroupsChanged     = "user_groups_changed"
	AuditPatientRegistered     = "patient_registered"
	AuditPrescriptionDispensed = "prescription_dispensed"
	AuditPrescriptionCancelled = "prescription_cancelled"
	AuditCriticalNotified      = "critical_result_notified"
	AuditLabResultVerified     = "lab_result_verified"
	AuditLabOrderCancelled     = "lab_order_cancelled"
)

// AuditLog records who changed what, with a before/after description.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;column:id" json:"id"`
	ActorID   *int64         `gorm:"index;column:actor_id" json:"actor_id,omitempty"`
	Action    string         `gorm:"size:50;not null;index;column:action" json:"action"`
	ModelName string         `gorm:"size:50;not null;column:model_name" json:"model_name"`
	ObjectID  string         `gorm:"size:50;not null;column:object_id" json:"object_id"`
	Changes   datatypes.JSON `gorm:"column:changes" json:"changes"`
	IPAddress string         `gorm:"size:45;column:ip_address" json:"ip_address,omitempty"`
	Timestamp time.Time      `gorm:"autoCreateTime;index;column:timestamp" json:"timestamp"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Change is the before/after payload stored in AuditLog.Changes.
type Change struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
	Note   string      `json:"note,omitempty"`
}

// NewAuditLog builds an entry; a zero actorID records a system action.
func NewAuditLog(actorID int64, action, model, objectID string, change Change) (*AuditLog, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, err
	}
	entry := &AuditLog{
		Action:    action,
		ModelName: model,
		ObjectID:  objectID,
		Changes:   datatypes.JSON(payload),
	}
	if actorID != 0 {
		entry.ActorID = &actorID
	}
	return entry, nil
}
