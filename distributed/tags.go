package distributed

import "fmt"

// Message tags are split into reserved ranges per purpose. A range offset
// separates independent exchanges of the same kind.
const (
	TagSetup        = 100
	TagCellAverages = 200
	TagGather       = 300
	TagScatter      = 400

	tagRangeSize = 100
)

// Tag returns the tag at offset within the reserved range starting at base.
func Tag(base, offset int) int {
	if offset < 0 || offset >= tagRangeSize {
		panic(fmt.Sprintf("tag offset %d outside [0, %d)", offset, tagRangeSize))
	}
	return base + offset
}
