package catalog

import "time"

// Session is one recording session.
type Session struct {
	ID             string `gorm:"primaryKey;size:36"`
	Path           string
	Format         string `gorm:"size:16"`
	Partition      bool
	SampleRate     int
	Channels       int
	StartedAt      time.Time `gorm:"index"`
	StoppedAt      *time.Time
	StopReason     string `gorm:"size:32"`
	ElapsedSeconds float64
	BlocksCaptured int64
	BlocksWritten  int64
	BlocksSkipped  int64
	Flushes        int64
	Error          string
	Segments       []Segment `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Segment is one flush of a session.
type Segment struct {
	ID            uint   `gorm:"primaryKey"`
	SessionID     string `gorm:"index;size:36"`
	File          string // empty when the session discards audio
	Blocks        int
	Skipped       int
	Frames        int
	Bytes         int64
	FirstCaptured time.Time // capture time of the first block
	LastCaptured  time.Time
	Final         bool
	Error         string
	CreatedAt     time.Time
}
