package store

import "dcms/clinic-service/internal/models"

var transitionMap = map[string][]string{
	"call":     {models.StatusWaiting},
	"complete": {models.StatusServing},
	"cancel":   {models.StatusWaiting, models.StatusServing},
	"reject":   {models.StatusWaiting, models.StatusServing},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses an action may start from.
func AllowedFrom(action string) []string {
	return transitionMap[action]
}

// TargetStatus returns the status an action transitions to.
func TargetStatus(action string) string {
	switch action {
	case "call":
		return models.StatusServing
	case "complete":
		return models.StatusCompleted
	case "cancel":
		return models.StatusCancelled
	case "reject":
		return models.StatusRejected
	default:
		return ""
	}
}
