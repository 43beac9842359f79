package domain

import "time"

// Explanation is the narrative for one match, cached per (fund, LP, corpus version).
type Explanation struct {
	FundID        string    `json:"fund_id"`
	LPID          string    `json:"lp_id"`
	CorpusVersion uint64    `json:"corpus_version"`
	Text          string    `json:"text"`
	GeneratedAt   time.Time `json:"generated_at"`
	// Stale marks an explanation older than the staleness window. It is still
	// served; callers may request a refresh.
	Stale bool `json:"stale"`
}
