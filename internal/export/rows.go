package export

// Pair groups items into rows of two in order. An odd count leaves a single
// item in the last row, so len(rows) == ceil(len(items)/2).
func Pair[T any](items []T) [][]T {
	rows := make([][]T, 0, (len(items)+1)/2)
	for i := 0; i < len(items); i += 2 {
		end := min(i+2, len(items))
		rows = append(rows, items[i:end:end])
	}
	return rows
}
