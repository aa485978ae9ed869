package captcha

import (
	"fmt"
	"strconv"
)

func fmtSscanf(question string, a *int, op *string, b *int) (int, error) {
	return fmt.Sscanf(question, "%d %s %d = ?", a, op, b)
}

func itoa(n int) string { return strconv.Itoa(n) }
