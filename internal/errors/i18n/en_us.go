package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                = "UNKNOWN"
	CodeCreditInvalidAmount    = "CREDIT_INVALID_AMOUNT"
	CodeCreditInsufficient     = "CREDIT_INSUFFICIENT"
	CodeCreditExceedsCap       = "CREDIT_EXCEEDS_CAP"
	CodeAchievementUnknown     = "ACHIEVEMENT_UNKNOWN"
	CodeAchievementGuestLocked = "ACHIEVEMENT_GUEST_LOCKED"
	CodeChoiceLocked           = "CHOICE_LOCKED"
	CodeChoiceUnknown          = "CHOICE_UNKNOWN"
	CodePlaybackNoChoice       = "PLAYBACK_NOT_AT_CHOICE"
	CodePlaybackEnded          = "PLAYBACK_ENDED"
	CodeGraphIntegrity         = "GRAPH_INTEGRITY"
	CodeAccountEmptyID         = "ACCOUNT_EMPTY_ID"
	CodeStoryUnknown           = "STORY_UNKNOWN"
	CodeNotFound               = "NOT_FOUND"
	CodeRatingOutOfRange       = "RATING_OUT_OF_RANGE"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown: "Something went wrong. Please try again.",

		// Credit ledger errors
		CodeCreditInvalidAmount: "That credit amount is not valid",
		CodeCreditInsufficient:  "You need {{.Required}} credits but only have {{.Balance}}",
		CodeCreditExceedsCap:    "This would exceed your credit limit",

		// Achievement errors
		CodeAchievementUnknown:     "Unknown achievement",
		CodeAchievementGuestLocked: "Guest accounts cannot earn achievements",

		// Playback errors
		CodeChoiceLocked:     "This choice requires the {{.Achievement}} achievement",
		CodeChoiceUnknown:    "That choice is not available here",
		CodePlaybackNoChoice: "The story is not waiting on a choice",
		CodePlaybackEnded:    "This playthrough has already ended",
		CodeGraphIntegrity:   "This story has a content problem and cannot continue",

		// Account errors
		CodeAccountEmptyID: "A user id is required",

		// Content errors
		CodeStoryUnknown: "Unknown story",

		// Storage errors
		CodeNotFound: "Not found",

		// Rating errors
		CodeRatingOutOfRange: "Ratings must be between {{.Min}} and {{.Max}} stars",
	},
}
