package utils

// MaskID keeps the first n characters of id and replaces the rest with "...".
// IDs no longer than n are returned unchanged.
func MaskID(id string, n int) string {
	r := []rune(id)
	if n < 0 {
		n = 0
	}
	if len(r) <= n {
		return id
	}
	return string(r[:n]) + "..."
}

// MaskSecret hides a secret entirely, reporting only whether it is set.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
