package harvest

// Progress receives batch events as they happen. Calls come from the
// goroutine running the batch.
type Progress interface {
	BatchStarted(runID, endpoint string, keys int)
	KeySkipped(key string)
	KeyStarted(key string, position, total int)
	PageWritten(key string, index, records int)
	KeyFinished(res RunResult)
	BatchFinished(sum Summary)
}

type nopProgress struct{}

func (nopProgress) BatchStarted(string, string, int) {}
func (nopProgress) KeySkipped(string)                {}
func (nopProgress) KeyStarted(string, int, int)      {}
func (nopProgress) PageWritten(string, int, int)     {}
func (nopProgress) KeyFinished(RunResult)            {}
func (nopProgress) BatchFinished(Summary)            {}

// MultiProgress fans events out to several observers
type MultiProgress []Progress

func (m MultiProgress) BatchStarted(runID, endpoint string, keys int) {
	for _, p := range m {
		p.BatchStarted(runID, endpoint, keys)
	}
}

func (m MultiProgress) KeySkipped(key string) {
	for _, p := range m {
		p.KeySkipped(key)
	}
}

func (m MultiProgress) KeyStarted(key string, position, total int) {
	for _, p := range m {
		p.KeyStarted(key, position, total)
	}
}

func (m MultiProgress) PageWritten(key string, index, records int) {
	for _, p := range m {
		p.PageWritten(key, index, records)
	}
}

func (m MultiProgress) KeyFinished(res RunResult) {
	for _, p := range m {
		p.KeyFinished(res)
	}
}

func (m MultiProgress) BatchFinished(sum Summary) {
	for _, p := range m {
		p.BatchFinished(sum)
	}
}
