package tensor

import (
	"strconv"
	"strings"
)

// previewLimit is the number of leading elements shown by String.
const previewLimit = 5

// String returns a bounded preview of shape, data and grad for diagnostics.
func (t *Tensor) String() string {
	if len(t.Shape) == 0 {
		return "Tensor(not initialized)"
	}

	var sb strings.Builder
	sb.WriteString("Tensor(shape=")
	sb.WriteString(t.Shape.String())
	if len(t.Data) > 0 {
		sb.WriteString(", data=")
		writePreview(&sb, t.Data)
	} else {
		sb.WriteString(", data=[no data]")
	}
	if len(t.Grad) > 0 {
		sb.WriteString(", grad=")
		writePreview(&sb, t.Grad)
	}
	sb.WriteString(")")
	return sb.String()
}

func writePreview(sb *strings.Builder, values []float32) {
	n := min(previewLimit, len(values))
	sb.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(float64(values[i]), 'g', -1, 32))
	}
	if len(values) > n {
		sb.WriteString(", ...")
	}
	sb.WriteByte(']')
}
