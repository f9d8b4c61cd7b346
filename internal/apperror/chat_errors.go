package apperror

var (
	// Code-only sentinels for errors.Is checks.
	ErrValidation   = &AppError{Code: CodeInvalidArgument}
	ErrNotFound     = &AppError{Code: CodeNotFound}
	ErrForbidden    = &AppError{Code: CodePermissionDenied}
	ErrConflict     = &AppError{Code: CodeAlreadyExists}
	ErrUnavailable  = &AppError{Code: CodeUnavailable}
	ErrUnauthorized = &AppError{Code: CodeUnauthenticated}

	ErrConversationNotFound  = NotFound("conversation not found")
	ErrMessageNotFound       = NotFound("message not found")
	ErrNotParticipant        = Forbidden("you are not a participant of this conversation")
	ErrNotGroupAdmin         = Forbidden("only group admins can perform this action")
	ErrNotSender             = Forbidden("only the sender can modify this message")
	ErrParticipantsRequired  = Validation("participantIds must be a list of user ids")
	ErrEmptyContent          = Validation("content is required")
	ErrMessageDeleted        = Validation("deleted messages cannot be edited")
	ErrGroupOnly             = Validation("participants can only be managed in group conversations")
	ErrInvalidAction         = Validation("action must be one of add, remove, leave, promote, demote")
	ErrInvalidContentType    = Validation("unsupported content type")
	ErrFileURLRequired       = Validation("fileUrl is required for this content type")
	ErrInvalidExpiry         = Validation("expiresInSeconds must be positive")
	ErrInvalidReply          = Validation("replyTo must reference a message in this conversation")
	ErrInvalidEmoji          = Validation("emoji is required")
	ErrInvalidCursor         = Validation("cursor must be an ISO-8601 timestamp")
	ErrDirectNeedsTwo        = Validation("direct conversations need exactly two participants")
	ErrPromoteNonParticipant = Validation("only participants can be promoted")
	ErrInvalidToken          = Unauthorized("invalid or expired token")
	ErrMissingToken          = Unauthorized("authorization token required")
	ErrAdminOnly             = Forbidden("admin role required")
)
