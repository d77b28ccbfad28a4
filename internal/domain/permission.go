package domain

import "fmt"

// VoteChoice is the per-emote verdict a viewer casts.
type VoteChoice string

const (
	ChoiceKeep    VoteChoice = "keep"
	ChoiceRemove  VoteChoice = "remove"
	ChoiceNeutral VoteChoice = "neutral"
)

func (c VoteChoice) Valid() bool {
	switch c {
	case ChoiceKeep, ChoiceRemove, ChoiceNeutral:
		return true
	}
	return false
}

// PermissionLevel is the visibility/voting tier attached to an event.
type PermissionLevel string

const (
	PermissionAll         PermissionLevel = "all"
	PermissionSpecific    PermissionLevel = "specific"
	PermissionFollowers   PermissionLevel = "followers"
	PermissionSubscribers PermissionLevel = "subscribers"
)

// ParsePermissionLevel normalizes a permission tag. "specific_users" is a
// legacy alias for "specific" and is folded into the canonical tag here so
// that only one value ever reaches storage.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	switch s {
	case "all":
		return PermissionAll, nil
	case "specific", "specific_users":
		return PermissionSpecific, nil
	case "followers":
		return PermissionFollowers, nil
	case "subscribers":
		return PermissionSubscribers, nil
	}
	return "", fmt.Errorf("unknown permission level %q", s)
}
