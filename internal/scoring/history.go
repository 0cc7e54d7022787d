package scoring

import (
	"math"
	"os"
	"time"

	"github.com/sevigo/code-mender/internal/gitutil"
)

// HistoryProvider supplies per-file commit activity. *gitutil.Client
// satisfies it; tests inject fakes.
type HistoryProvider interface {
	FileHistory(projectPath, relFile string) (gitutil.FileHistory, error)
}

const (
	commitWeight    = 8.0
	authorWeight    = 12.0
	gitHalfLifeDays = 90.0
	// Files untouched for years keep a floor so activity never zeroes out
	// the other signals entirely.
	decayFloor = 0.1

	mtimeBase         = 60.0
	mtimeHalfLifeDays = 30.0
)

// scoreChangeFrequency turns commit history into a 0-100 recency-decayed
// sub-score. Without usable history it falls back to the file's
// modification time.
func scoreChangeFrequency(h gitutil.FileHistory, err error, absPath string, now time.Time) float64 {
	if err != nil {
		return mtimeFallback(absPath, now)
	}
	base := float64(h.Commits)*commitWeight + float64(h.Authors)*authorWeight
	if base > 100 {
		base = 100
	}
	return base * decay(now.Sub(h.LastChange), gitHalfLifeDays)
}

func mtimeFallback(absPath string, now time.Time) float64 {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0
	}
	return mtimeBase * decay(now.Sub(info.ModTime()), mtimeHalfLifeDays)
}

func decay(age time.Duration, halfLifeDays float64) float64 {
	days := age.Hours() / 24
	if days < 0 {
		days = 0
	}
	f := math.Pow(0.5, days/halfLifeDays)
	if f < decayFloor {
		return decayFloor
	}
	return f
}
