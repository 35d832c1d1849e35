package lattice

import "fmt"

func spanLabel(start, end int) string {
	return fmt.Sprintf("[%d:%d]", start, end)
}

func parseSpanLabel(label string, start, end *int) (int, error) {
	return fmt.Sscanf(label, "[%d:%d]", start, end)
}
