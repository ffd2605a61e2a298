package dispatch

import (
	"time"

	"stockdash/internal/domain"
	"stockdash/internal/status"
	"stockdash/internal/table"
	"stockdash/pkg/tickerapi"
)

func tickerFromStatus(s tickerapi.TickerStatus) domain.Ticker {
	t := domain.Ticker{
		Symbol:        s.Ticker,
		Name:          s.Name,
		LastCloseDate: s.LastCloseDate,
		FirstDate:     s.FirstDate,
		TotalRecords:  s.TotalRecords,
		LastUpdated:   s.LastUpdated,
		NeedsUpdate:   s.NeedsUpdate,
		SizeAdjusted:  s.FileSizes.Adjusted,
		SizeRaw:       s.FileSizes.NotAdjusted,
	}
	if s.CSVInfo != nil {
		t.Company = s.CSVInfo.Company
		t.Sector = s.CSVInfo.Sector
		t.Industry = s.CSVInfo.Industry
	}
	if t.Name == "" {
		t.Name = t.Company
	}
	return t
}

func tickerRecord(t domain.Ticker, badge status.Badge, src domain.Source) table.Record {
	return table.Record{
		"ticker":          t.Symbol,
		"name":            t.Name,
		"sector":          t.Sector,
		"industry":        t.Industry,
		"last_close_date": t.LastCloseDate,
		"first_date":      t.FirstDate,
		"total_records":   t.TotalRecords,
		"last_updated":    t.LastUpdated,
		"needs_update":    badge.NeedsUpdate,
		"status":          badge,
		"size_adjusted":   t.SizeAdjusted,
		"size_raw":        t.SizeRaw,
		"source":          string(src),
	}
}

// parseDay reads the date part of s; invalid input gives the zero time.
func parseDay(s string) time.Time {
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func barsFromAPI(in []tickerapi.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(in))
	for _, b := range in {
		out = append(out, domain.Bar{
			Date:     parseDay(b.Date),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		})
	}
	return out
}

func levelFromAPI(l tickerapi.Level) domain.PriceLevel {
	return domain.PriceLevel{
		ID:          l.ID,
		Ticker:      l.Ticker,
		Date:        parseDay(l.Date),
		Kind:        domain.LevelKind(l.Type),
		Price:       l.Level,
		Strength:    l.Strength,
		Touches:     l.Touches,
		DistancePct: l.DistancePct,
	}
}

func levelRecord(l tickerapi.Level) table.Record {
	return table.Record{
		"id":           l.ID,
		"ticker":       l.Ticker,
		"date":         l.Date,
		"type":         l.Type,
		"level":        l.Level,
		"strength":     l.Strength,
		"touches":      l.Touches,
		"distance_pct": l.DistancePct,
	}
}

func zoneFromAPI(z tickerapi.Zone) domain.Zone {
	return domain.Zone{
		ID:           z.ID,
		Ticker:       z.Ticker,
		Date:         parseDay(z.Date),
		Pattern:      z.Pattern,
		Kind:         domain.ZoneKind(z.Type),
		Bottom:       z.Bottom,
		Top:          z.Top,
		ThicknessPct: z.ThicknessPct,
		Strength:     z.StrengthScore,
		DistancePct:  z.DistanceFromCurrent,
		Virgin:       z.Virgin,
	}
}

func zoneRecord(z tickerapi.Zone) table.Record {
	return table.Record{
		"zone_id":               z.ID,
		"ticker":                z.Ticker,
		"date":                  z.Date,
		"pattern":               z.Pattern,
		"type":                  z.Type,
		"zone_bottom":           z.Bottom,
		"zone_top":              z.Top,
		"zone_center":           z.Center,
		"zone_thickness_pct":    z.ThicknessPct,
		"strength_score":        z.StrengthScore,
		"distance_from_current": z.DistanceFromCurrent,
		"virgin_zone":           z.Virgin,
	}
}
