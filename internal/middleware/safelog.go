package middleware

// SafeID truncates identifiers for log lines so that full session or user ids
// never land in logs.
func SafeID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
