package analytics

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Category is a spending category key.
type Category string

const (
	CategoryGroceries     Category = "groceries"
	CategoryRestaurants   Category = "restaurants"
	CategoryTransport     Category = "transport"
	CategoryFuel          Category = "fuel"
	CategoryHealth        Category = "health"
	CategoryShopping      Category = "shopping"
	CategoryUtilities     Category = "utilities"
	CategoryEntertainment Category = "entertainment"
	CategoryTravel        Category = "travel"
	CategoryTransfers     Category = "transfers"
	CategoryOther         Category = "other"
)

// categoryNames holds the display names shown to users.
var categoryNames = map[Category]string{
	CategoryGroceries:     "Продукты",
	CategoryRestaurants:   "Рестораны и кафе",
	CategoryTransport:     "Транспорт",
	CategoryFuel:          "Топливо",
	CategoryHealth:        "Здоровье",
	CategoryShopping:      "Покупки",
	CategoryUtilities:     "Связь и ЖКХ",
	CategoryEntertainment: "Развлечения",
	CategoryTravel:        "Путешествия",
	CategoryTransfers:     "Переводы",
	CategoryOther:         "Другое",
}

// Name returns the display name, or the key itself when none is registered.
func (c Category) Name() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return string(c)
}

// MCCMapping maps ISO 18245 merchant category codes to categories.
var MCCMapping = map[string]Category{
	"5411": CategoryGroceries,
	"5412": CategoryGroceries,
	"5422": CategoryGroceries,
	"5441": CategoryGroceries,
	"5451": CategoryGroceries,
	"5462": CategoryGroceries,
	"5499": CategoryGroceries,

	"5811": CategoryRestaurants,
	"5812": CategoryRestaurants,
	"5813": CategoryRestaurants,
	"5814": CategoryRestaurants,

	"4111": CategoryTransport,
	"4112": CategoryTransport,
	"4121": CategoryTransport,
	"4131": CategoryTransport,
	"4789": CategoryTransport,
	"7523": CategoryTransport,

	"5541": CategoryFuel,
	"5542": CategoryFuel,
	"5983": CategoryFuel,

	"5912": CategoryHealth,
	"8011": CategoryHealth,
	"8021": CategoryHealth,
	"8062": CategoryHealth,
	"8071": CategoryHealth,
	"8099": CategoryHealth,

	"5310": CategoryShopping,
	"5311": CategoryShopping,
	"5331": CategoryShopping,
	"5399": CategoryShopping,
	"5651": CategoryShopping,
	"5691": CategoryShopping,
	"5699": CategoryShopping,
	"5732": CategoryShopping,
	"5945": CategoryShopping,
	"5999": CategoryShopping,

	"4814": CategoryUtilities,
	"4900": CategoryUtilities,

	"4899": CategoryEntertainment,
	"7832": CategoryEntertainment,
	"7922": CategoryEntertainment,
	"7941": CategoryEntertainment,
	"7991": CategoryEntertainment,
	"7996": CategoryEntertainment,

	"4511": CategoryTravel,
	"4722": CategoryTravel,
	"7011": CategoryTravel,

	"4829": CategoryTransfers,
	"6012": CategoryTransfers,
	"6538": CategoryTransfers,
}

// Airline (3000-3299) and hotel (3501-3999) brand codes.
var mccRanges = []struct {
	from, to int
	category Category
}{
	{3000, 3299, CategoryTravel},
	{3501, 3999, CategoryTravel},
}

// descriptionKeywords is checked in order; the first match wins.
var descriptionKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryGroceries, []string{"supermarket", "grocery", "pyaterochka", "magnit", "пятерочка", "пятёрочка", "магнит", "перекресток", "перекрёсток", "продукты", "ашан"}},
	{CategoryRestaurants, []string{"restaurant", "cafe", "coffee", "pizza", "burger", "ресторан", "кафе", "кофе", "пицца", "бургер"}},
	{CategoryTransport, []string{"taxi", "metro", "такси", "метро", "автобус", "электричка"}},
	{CategoryFuel, []string{"fuel", "gas station", "lukoil", "азс", "бензин", "лукойл", "газпромнефть"}},
	{CategoryHealth, []string{"pharmacy", "apteka", "clinic", "аптека", "клиника", "стоматология"}},
	{CategoryEntertainment, []string{"cinema", "kinopoisk", "netflix", "spotify", "кино", "театр", "кинопоиск"}},
	{CategoryUtilities, []string{"mobile", "internet", "utility", "связь", "интернет", "жкх", "мтс", "билайн"}},
	{CategoryTravel, []string{"airline", "hotel", "aeroflot", "авиабилет", "отель", "аэрофлот"}},
	{CategoryShopping, []string{"ozon", "wildberries", "store", "shop", "магазин", "озон"}},
	{CategoryTransfers, []string{"transfer", "перевод"}},
}

// Categorize resolves a category from the merchant code first, then from
// keywords in the description. Unmatched transactions fall into CategoryOther.
func Categorize(mcc, description string) Category {
	if c, ok := categoryForMCC(strings.TrimSpace(mcc)); ok {
		return c
	}

	desc := foldDescription(description)
	if desc == "" {
		return CategoryOther
	}
	for _, entry := range descriptionKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(desc, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}

// foldDescription composes the text to NFC before case folding so that
// decomposed letters such as "е\u0308" match the "ё" keywords.
func foldDescription(s string) string {
	if s == "" {
		return ""
	}
	return cases.Fold().String(norm.NFC.String(s))
}

func categoryForMCC(mcc string) (Category, bool) {
	if mcc == "" {
		return "", false
	}
	if c, ok := MCCMapping[mcc]; ok {
		return c, true
	}
	code := 0
	for _, r := range mcc {
		if r < '0' || r > '9' {
			return "", false
		}
		code = code*10 + int(r-'0')
	}
	for _, rg := range mccRanges {
		if code >= rg.from && code <= rg.to {
			return rg.category, true
		}
	}
	return "", false
}
