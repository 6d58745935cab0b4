package audiofile

import (
	"testing"

	"go.uber.org/goleak"
)

// The ffmpeg probe cache lives for the whole process and must not leave
// goroutines behind in packages that import audiofile.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
