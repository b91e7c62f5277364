package store

// defaultPageSize bounds unqualified list requests.
const defaultPageSize = 50

// ListQuery filters and pages the live property listing. Cursor is the id of
// the last entity on the previous page; pages order by entity id so a cursor
// stays valid across inserts.
type ListQuery struct {
	Verdict      string
	State        string
	City         string
	PropertyType string
	Cursor       string
	Limit        int
}
