package service

import "errors"

var (
	// ErrNotFound indicates the token or id does not resolve to an action.
	ErrNotFound = errors.New("action not found")
	// ErrAlreadyDecided indicates the action left the pending state before this decision.
	ErrAlreadyDecided = errors.New("action already decided")
	// ErrExpired indicates the approval window closed. The action is moved to expired.
	ErrExpired = errors.New("action expired")
	// ErrConfigMissing indicates the agent has not been configured yet.
	ErrConfigMissing = errors.New("agent is not configured, configure the agent first")
	// ErrBackendNotConfigured indicates no ad platform credentials are configured. Approved
	// actions wait for a later run instead of failing.
	ErrBackendNotConfigured = errors.New("ad platform backend not configured")
	// ErrNotImplemented is recorded for action types without an executor handler.
	ErrNotImplemented = errors.New("action type not implemented")
	// ErrBudgetExceeded is recorded when a spend would cross the daily limit.
	ErrBudgetExceeded = errors.New("daily budget limit would be exceeded")
	// ErrEditNotAllowed indicates the action type has no editable content.
	ErrEditNotAllowed = errors.New("only post content can be edited")
	// ErrInvalidAction indicates a queue request failed validation.
	ErrInvalidAction = errors.New("invalid action")
	// ErrGoalNotFound indicates the goal id does not exist.
	ErrGoalNotFound = errors.New("goal not found")
)
