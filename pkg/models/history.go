package models

// HistoryEntry is a durable record of a completed job.
// OriginalURL references audio held by the session that produced the entry
// and may no longer resolve once that session has ended.
type HistoryEntry struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Date        string     `json:"date"`
	Results     *JobResult `json:"results"`
	OriginalURL string     `json:"originalUrl"`
}
