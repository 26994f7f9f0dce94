package record

import (
	"fmt"
	"strings"
)

// ValidateUpdate checks a new update.
func ValidateUpdate(u Update) error {
	if strings.TrimSpace(u.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	return nil
}

// ValidateAction checks a new action.
func ValidateAction(a Action) error {
	if strings.TrimSpace(a.Task) == "" {
		return fmt.Errorf("%w: task is required", ErrInvalidInput)
	}
	if strings.TrimSpace(a.AssignedTo) == "" {
		return fmt.Errorf("%w: assignee is required", ErrInvalidInput)
	}
	return nil
}

// ValidateActionStatus checks a requested status.
func ValidateActionStatus(status ActionStatus) error {
	switch status {
	case ActionOpen, ActionClosed:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
}

// ValidateQuestion checks a new thread.
func ValidateQuestion(q QuestionThread) error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}

// ValidateReply checks reply content.
func ValidateReply(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: reply content is required", ErrInvalidInput)
	}
	return nil
}

// ValidatePhoto checks a new photo.
func ValidatePhoto(p Photo) error {
	if strings.TrimSpace(p.Src) == "" {
		return fmt.Errorf("%w: select a photo first", ErrInvalidInput)
	}
	return nil
}
