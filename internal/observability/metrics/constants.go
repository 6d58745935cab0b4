package metrics

// Label values shared by the collectors in this package.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Catalog operation labels.
const (
	OpSessionCreate = "session_create"
	OpSegmentAdd    = "segment_add"
	OpSessionFinish = "session_finish"
)
