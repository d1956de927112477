package ports

// ErrorLogPort appends violation findings to the durable cross-run error
// log. Appends from concurrent scans must be serialized by the
// implementation; prior content is never overwritten.
type ErrorLogPort interface {
	Append(lines []string) error
}
