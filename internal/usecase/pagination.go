package usecase

import (
	"math"

	"github.com/example/record-service/internal/domain"
)

// NormalizePage floors number and size at 1 and caps size at limit. number is
// capped so the row offset cannot overflow.
func NormalizePage(number, size, limit int) domain.Page {
	if number < 1 {
		number = 1
	}
	if size < 1 {
		size = 1
	}
	if limit > 0 && size > limit {
		size = limit
	}
	if maxNumber := math.MaxInt / size; number > maxNumber {
		number = maxNumber
	}
	return domain.Page{Number: number, Size: size}
}
