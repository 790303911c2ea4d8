package synth

import (
	"fmt"
	"time"
)

// OrderNumbers hands out order numbers of the form PREFIX-YYYYMMDD-NNNN, or
// PREFIX-YYYYMMDD-TAG-NNNN when a tag is set. The sequence restarts per day.
type OrderNumbers struct {
	prefix string
	tag    string
	perDay map[string]int
}

// NewOrderNumbers creates a generator for prefix.
func NewOrderNumbers(prefix, tag string) *OrderNumbers {
	return &OrderNumbers{prefix: prefix, tag: tag, perDay: make(map[string]int)}
}

// Next returns the next number for the day of t.
func (o *OrderNumbers) Next(t time.Time) string {
	day := t.Format("20060102")
	o.perDay[day]++
	if o.tag == "" {
		return fmt.Sprintf("%s-%s-%04d", o.prefix, day, o.perDay[day])
	}
	return fmt.Sprintf("%s-%s-%s-%04d", o.prefix, day, o.tag, o.perDay[day])
}

// RunTag derives a short stable tag from a seed.
func RunTag(seed int64) string {
	const alphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	u := uint64(seed)
	buf := make([]byte, 4)
	for i := range buf {
		buf[i] = alphabet[u%uint64(len(alphabet))]
		u /= uint64(len(alphabet))
	}
	return string(buf)
}
