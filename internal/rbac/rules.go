package rbac

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Permission names checked by the HTTP layer.
const (
	PermExamView       = "exam:view"
	PermExamCreate     = "exam:create"
	PermExamDrafts     = "exam:view-unpublished"
	PermExamGrade      = "exam:grade"
	PermExamKeys       = "exam:view-keys"
	PermAttemptCreate  = "attempt:create"
	PermAttemptSave    = "attempt:save"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewAll = "attempt:view-all"
	PermAssetUpload    = "asset:upload"
	PermAssetView      = "asset:view"
	PermEventsView     = "events:view"
	PermUsersManage    = "users:manage"
)

var RolePermissions = map[string][]string{
	RoleUser: {
		PermExamView,
		PermExamGrade,
		PermAttemptCreate,
		PermAttemptSave,
		PermAttemptSubmit,
		PermAssetView,
	},
	RoleAdmin: {
		"*",
	},
}
