package tracker

// MeetsCompletionThreshold reports whether a measured grand total satisfies
// a register's completion threshold. A zero total never completes, whatever
// the threshold; whole minutes are compared, so 3599 seconds fall short of a
// 60 minute threshold.
func MeetsCompletionThreshold(thresholdMinutes int, totalSeconds int64) bool {
	if totalSeconds == 0 {
		return false
	}
	return totalSeconds/60 >= int64(thresholdMinutes)
}
