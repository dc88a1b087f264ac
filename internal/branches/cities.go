package branches

import (
	"strings"
	"unicode"
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lng float64 `yaml:"lng" json:"lng"`
}

var cityAliases = buildAliases(map[string][]string{
	"riyadh":         {"ar riyadh", "al riyadh", "الرياض"},
	"jeddah":         {"jiddah", "jedda", "جدة", "جده"},
	"makkah":         {"mecca", "makka", "مكة", "مكة المكرمة"},
	"madinah":        {"medina", "al madinah", "المدينة", "المدينة المنورة"},
	"dammam":         {"ad dammam", "الدمام"},
	"khobar":         {"al khobar", "alkhobar", "الخبر"},
	"dhahran":        {"الظهران"},
	"taif":           {"at taif", "الطائف"},
	"abha":           {"أبها", "ابها"},
	"tabuk":          {"تبوك"},
	"buraydah":       {"buraidah", "بريدة"},
	"khamis mushait": {"خميس مشيط"},
	"hail":           {"حائل"},
})

var cityCenters = map[string]Coordinates{
	"riyadh":         {Lat: 24.7136, Lng: 46.6753},
	"jeddah":         {Lat: 21.4858, Lng: 39.1925},
	"makkah":         {Lat: 21.3891, Lng: 39.8579},
	"madinah":        {Lat: 24.5247, Lng: 39.5692},
	"dammam":         {Lat: 26.4207, Lng: 50.0888},
	"khobar":         {Lat: 26.2172, Lng: 50.1971},
	"dhahran":        {Lat: 26.2361, Lng: 50.0393},
	"taif":           {Lat: 21.2703, Lng: 40.4158},
	"abha":           {Lat: 18.2164, Lng: 42.5053},
	"tabuk":          {Lat: 28.3838, Lng: 36.5550},
	"buraydah":       {Lat: 26.3260, Lng: 43.9750},
	"khamis mushait": {Lat: 18.3000, Lng: 42.7333},
	"hail":           {Lat: 27.5114, Lng: 41.7208},
}

// NormalizeCity maps English and Arabic spellings to a canonical city key.
// Unknown cities are returned lowercased and trimmed; empty input yields "".
func NormalizeCity(raw string) string {
	key := simplify(raw)
	if key == "" {
		return ""
	}
	if canonical, ok := cityAliases[key]; ok {
		return canonical
	}
	key = strings.TrimPrefix(key, "al ")
	if canonical, ok := cityAliases[key]; ok {
		return canonical
	}
	return key
}

// KnownCity reports whether raw resolves to a city in the alias table.
func KnownCity(raw string) bool {
	_, ok := cityCenters[NormalizeCity(raw)]
	return ok
}

// CityCenter returns the centre coordinates of a known city.
func CityCenter(raw string) (Coordinates, bool) {
	c, ok := cityCenters[NormalizeCity(raw)]
	return c, ok
}

func buildAliases(spellings map[string][]string) map[string]string {
	aliases := make(map[string]string)
	for canonical, variants := range spellings {
		aliases[canonical] = canonical
		for _, variant := range variants {
			aliases[simplify(variant)] = canonical
		}
	}
	return aliases
}

func simplify(raw string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r):
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}
