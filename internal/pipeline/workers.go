package pipeline

// Staircase derives the worker count from the number of companies.
func Staircase(n int) int {
	switch {
	case n <= 5:
		return 2
	case n <= 15:
		return 3
	case n <= 30:
		return 5
	default:
		return 7
	}
}

// WorkerCount resolves the pool size: an explicit hint wins over the
// staircase, and maxWorkers (when positive) caps either.
func WorkerCount(n, hint, maxWorkers int) int {
	workers := hint
	if workers <= 0 {
		workers = Staircase(n)
	}
	if maxWorkers > 0 && workers > maxWorkers {
		workers = maxWorkers
	}
	return workers
}
