package handlers

import "luckydraw/internal/models"

const maskPlaceholder = "xxx"

// maskPhone keeps the first 4 and last 3 characters of a contact string,
// e.g. 0901234567 becomes 0901xxx567. Shorter values are hidden entirely.
func maskPhone(phone string) string {
	r := []rune(phone)
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 7:
		return maskPlaceholder
	default:
		return string(r[:4]) + maskPlaceholder + string(r[len(r)-3:])
	}
}

func maskWinner(w models.WinnerRecord) models.WinnerRecord {
	w.RegistrantPhone = maskPhone(w.RegistrantPhone)
	return w
}

func maskWinners(in []models.WinnerRecord) []models.WinnerRecord {
	out := make([]models.WinnerRecord, len(in))
	for i, w := range in {
		out[i] = maskWinner(w)
	}
	return out
}

func maskRegistrants(in []models.Registrant) []models.Registrant {
	out := make([]models.Registrant, len(in))
	for i, r := range in {
		r.Phone = maskPhone(r.Phone)
		out[i] = r
	}
	return out
}

func maskStatistics(s models.RoundStatistics) models.RoundStatistics {
	groups := make([]models.DrawnPrize, len(s.DrawnPrizes))
	for i, g := range s.DrawnPrizes {
		winners := make([]models.DrawnWinner, len(g.Winners))
		for j, w := range g.Winners {
			w.Phone = maskPhone(w.Phone)
			winners[j] = w
		}
		g.Winners = winners
		groups[i] = g
	}
	s.DrawnPrizes = groups
	return s
}
