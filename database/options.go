package database

type findVersionsOptions struct {
	limit  int
	offset int
	order  FindVersionsOrderBy
}

type FindVersionsOptions func(*findVersionsOptions)

// Limit the number of versions returned.
func WithFindVersionsLimit(limit int) FindVersionsOptions {
	return func(o *findVersionsOptions) {
		o.limit = limit
	}
}

// Skip the first versions of the result.
func WithFindVersionsOffset(offset int) FindVersionsOptions {
	return func(o *findVersionsOptions) {
		o.offset = offset
	}
}

type FindVersionsOrderBy string

const (
	// Newest release first.
	FindVersionsOrderByNewest FindVersionsOrderBy = "newest"
	// Oldest release first.
	FindVersionsOrderByOldest FindVersionsOrderBy = "oldest"
)

// Return the versions in a specific order.
func WithFindVersionsOrderBy(order FindVersionsOrderBy) FindVersionsOptions {
	return func(o *findVersionsOptions) {
		o.order = order
	}
}
