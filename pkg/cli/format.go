package cli

import "fmt"

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	exp := 0
	for v >= unit && exp < 3 {
		v /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", v, [...]string{"B", "KiB", "MiB", "GiB"}[exp])
}

// FormatSeconds renders a duration in seconds as a compact clock string.
func FormatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	if s < 60 {
		return fmt.Sprintf("%.1fs", s)
	}
	mins := int(s) / 60
	rem := s - float64(mins*60)
	return fmt.Sprintf("%dm%.1fs", mins, rem)
}
