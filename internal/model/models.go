package model

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&ApplicationModel{},
		&BusinessModel{},
		&ApplicantModel{},
		&UserProfileModel{},
		&ReviewerQueueModel{},
		&EligibilityResultModel{},
		&DueDiligenceModel{},
		&StateHistoryModel{},
		&AuditLogModel{},
		&WorkflowEventModel{},
	}
}
