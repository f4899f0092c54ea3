package health

import (
	"sync/atomic"
)

// DBHealthChecker caches the attempt log database status so the health
// handler never does I/O. A nil checker reports healthy.
type DBHealthChecker struct {
	healthy atomic.Bool
}

// NewDBHealthChecker starts healthy.
func NewDBHealthChecker() *DBHealthChecker {
	hc := &DBHealthChecker{}
	hc.healthy.Store(true)
	return hc
}

func (hc *DBHealthChecker) IsHealthy() bool {
	if hc == nil {
		return true
	}
	return hc.healthy.Load()
}

func (hc *DBHealthChecker) SetHealthy(healthy bool) {
	if hc == nil {
		return
	}
	hc.healthy.Store(healthy)
}
