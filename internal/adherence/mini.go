package adherence

// DaySummary is one entry of the compact roster strip.
type DaySummary struct {
	Date  string  `json:"date"`
	Ratio float64 `json:"ratio"`
	Tier  Tier    `json:"tier"`
	Class string  `json:"class"`
}

// Summarize classifies each record on its own, keeping input order. Unlike
// Build it does not align to weeks or fill gaps. A day with no doses is
// TierNone.
func Summarize(records []Record) []DaySummary {
	out := make([]DaySummary, 0, len(records))
	for _, r := range records {
		s := DaySummary{Date: dateKey(r.Date), Tier: TierNone}
		if len(r.Doses) > 0 {
			s.Ratio = float64(r.Taken()) / float64(len(r.Doses))
			s.Tier = TierFor(s.Ratio)
		}
		s.Class = s.Tier.CSSClass()
		out = append(out, s)
	}
	return out
}
