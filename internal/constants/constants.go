package constants

const (
	// ContextKeyUserID is the key used for the authenticated user ID in sessions and gin contexts.
	ContextKeyUserID = "user_id"
	// ContextKeyUserRole holds the role of the authenticated user in the gin context.
	ContextKeyUserRole = "user_role"
	// ContextKeyTask holds the task loaded by RequireTaskAccess.
	ContextKeyTask = "task"

	SessionCookieName = "annotation_session"

	MinPasswordLength = 8

	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	// DefaultRankingMax is the ranking length bound used when a task enables
	// the ranking kind without configuring one.
	DefaultRankingMax = 3

	DefaultReviewStatsDays = 30
)
