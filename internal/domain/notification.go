package domain

// Notification tells an LP about a fund that cleared its minimum score.
type Notification struct {
	LPID          string  `json:"lp_id"`
	FundID        string  `json:"fund_id"`
	FundVersion   int     `json:"fund_version"`
	Score         float64 `json:"score"`
	CorpusVersion uint64  `json:"corpus_version"`
}
