package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"housing-scraper/models"
	"housing-scraper/utils"
)

// InsightService computes asking-price statistics over stored listings.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the market insight for one city's listings.
func (s *InsightService) Generate(city string, listings []*models.Listing) *models.MarketInsight {
	insight := &models.MarketInsight{
		City:            city,
		ByNeighbourhood: make(map[string]int),
	}

	if len(listings) == 0 {
		return insight
	}

	insight.TotalListings = len(listings)

	var prices []int64
	var total, perSqmTotal float64
	perSqmCount := 0

	for _, l := range listings {
		if l.Neighbourhood != "" {
			insight.ByNeighbourhood[l.Neighbourhood]++
		}
		if l.Price <= 0 {
			continue
		}
		prices = append(prices, l.Price)
		total += float64(l.Price)
		if insight.MostExpensive == nil || l.Price > insight.MostExpensive.Price {
			insight.MostExpensive = l
		}
		if ppsqm := l.PricePerSqm(); ppsqm > 0 {
			perSqmTotal += ppsqm
			perSqmCount++
		}
	}

	if len(prices) == 0 {
		return insight
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	insight.PricedListings = len(prices)
	insight.MinPrice = prices[0]
	insight.MaxPrice = prices[len(prices)-1]
	insight.AveragePrice = round2(total / float64(len(prices)))
	insight.MedianPrice = median(prices)
	if perSqmCount > 0 {
		insight.AvgPricePerSqm = round2(perSqmTotal / float64(perSqmCount))
	}

	s.logger.Debug("[insights] %s: %d listings, avg EUR %.0f", city, insight.TotalListings, insight.AveragePrice)
	return insight
}

// Print writes the insight block for one city.
func (s *InsightService) Print(w io.Writer, r *models.MarketInsight) {
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", r.City)
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Stored listings   : \033[1m%d\033[0m\n", r.TotalListings)
	if r.PricedListings == 0 {
		fmt.Fprintf(w, "  No price data available\n\n")
		return
	}
	fmt.Fprintf(w, "  Average price     : \033[1;32mEUR %.0f\033[0m\n", r.AveragePrice)
	fmt.Fprintf(w, "  Median price      : \033[1;32mEUR %.0f\033[0m\n", r.MedianPrice)
	fmt.Fprintf(w, "  Min / max price   : EUR %d / EUR %d\n", r.MinPrice, r.MaxPrice)
	fmt.Fprintf(w, "  Avg price per m2  : EUR %.2f\n", r.AvgPricePerSqm)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most expensive    : %s (EUR %d)\n", truncate(r.MostExpensive.Address, 40), r.MostExpensive.Price)
	}

	if len(r.ByNeighbourhood) > 0 {
		type hoodCount struct {
			name  string
			count int
		}
		var hoods []hoodCount
		for name, cnt := range r.ByNeighbourhood {
			hoods = append(hoods, hoodCount{name, cnt})
		}
		sort.Slice(hoods, func(i, j int) bool {
			if hoods[i].count != hoods[j].count {
				return hoods[i].count > hoods[j].count
			}
			return hoods[i].name < hoods[j].name
		})
		if len(hoods) > 5 {
			hoods = hoods[:5]
		}
		for _, h := range hoods {
			fmt.Fprintf(w, "    %-28s %s (%d)\n", truncate(h.name, 26), strings.Repeat("█", min(h.count, 30)), h.count)
		}
	}
	fmt.Fprintln(w)
}

func median(sorted []int64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
