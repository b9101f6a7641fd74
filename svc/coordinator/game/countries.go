package game

import (
	"fmt"

	"github.com/mahammadbbyv/mirgos/pkg/protocol"
)

// Playable countries with their localized display names. Countries outside
// this table are still playable; they get placeholder cities.
var countryNames = map[string]protocol.LocalizedName{
	"France":      {EN: "France", RU: "Франция", UK: "Франція"},
	"Germany":     {EN: "Germany", RU: "Германия", UK: "Німеччина"},
	"Israel":      {EN: "Israel", RU: "Израиль", UK: "Ізраїль"},
	"Kazakhstan":  {EN: "Kazakhstan", RU: "Казахстан", UK: "Казахстан"},
	"North Korea": {EN: "North Korea", RU: "Северная Корея", UK: "Північна Корея"},
	"Russia":      {EN: "Russia", RU: "Россия", UK: "Росія"},
	"Ukraine":     {EN: "Ukraine", RU: "Украина", UK: "Україна"},
	"USA":         {EN: "USA", RU: "США", UK: "США"},
}

// LocalizeCountry returns every display variant of a country name, falling
// back to the canonical name for countries outside the table.
func LocalizeCountry(country string) protocol.LocalizedName {
	if names, ok := countryNames[country]; ok {
		return names
	}
	return protocol.LocalizedName{EN: country, RU: country, UK: country}
}

func city(names protocol.LocalizedName, income int) protocol.City {
	return protocol.City{
		Names:     names,
		Shield:    0,
		Level:     1,
		Income:    income,
		Defense:   0,
		Stability: 100,
	}
}

var startingCities = map[string][]protocol.City{
	"France": {
		city(protocol.LocalizedName{EN: "Paris", RU: "Париж", UK: "Париж"}, 120),
		city(protocol.LocalizedName{EN: "Lyon", RU: "Лион", UK: "Ліон"}, 100),
		city(protocol.LocalizedName{EN: "Marseille", RU: "Марсель", UK: "Марсель"}, 90),
		city(protocol.LocalizedName{EN: "Nantes", RU: "Нант", UK: "Нант"}, 80),
	},
	"Germany": {
		city(protocol.LocalizedName{EN: "Berlin", RU: "Берлин", UK: "Берлін"}, 120),
		city(protocol.LocalizedName{EN: "Leipzig", RU: "Лейпциг", UK: "Лейпциг"}, 100),
		city(protocol.LocalizedName{EN: "Frankfurt", RU: "Франкфурт", UK: "Франкфурт"}, 90),
		city(protocol.LocalizedName{EN: "Rhein", RU: "Рейн", UK: "Рейн"}, 80),
	},
	"Israel": {
		city(protocol.LocalizedName{EN: "Jerusalem", RU: "Иерусалим", UK: "Єрусалим"}, 120),
		city(protocol.LocalizedName{EN: "Tel Aviv", RU: "Тель-Авив", UK: "Тель-Авів"}, 100),
		city(protocol.LocalizedName{EN: "Akko", RU: "Акко", UK: "Ако"}, 90),
		city(protocol.LocalizedName{EN: "Ashkelon", RU: "Ашкелон", UK: "Ашкелон"}, 80),
	},
	"Kazakhstan": {
		city(protocol.LocalizedName{EN: "Nur-Sultan", RU: "Нур-Султан", UK: "Нур-Султан"}, 120),
		city(protocol.LocalizedName{EN: "Almaty", RU: "Алматы", UK: "Алмати"}, 100),
		city(protocol.LocalizedName{EN: "Shymkent", RU: "Шымкент", UK: "Шимкент"}, 90),
		city(protocol.LocalizedName{EN: "Karaganda", RU: "Караганда", UK: "Караганда"}, 80),
	},
	"North Korea": {
		city(protocol.LocalizedName{EN: "Pyongyang", RU: "Пхеньян", UK: "Пхеньян"}, 120),
		city(protocol.LocalizedName{EN: "Kaesong", RU: "Кэсон", UK: "Кесон"}, 100),
		city(protocol.LocalizedName{EN: "Nampo", RU: "Нампо", UK: "Нампо"}, 90),
		city(protocol.LocalizedName{EN: "Wonsan", RU: "Вонсан", UK: "Вонсан"}, 80),
	},
	"Russia": {
		city(protocol.LocalizedName{EN: "Moscow", RU: "Москва", UK: "Москва"}, 120),
		city(protocol.LocalizedName{EN: "Saint Petersburg", RU: "Питер", UK: "Пітер"}, 100),
		city(protocol.LocalizedName{EN: "Crimea", RU: "Крым", UK: "Крим"}, 90),
		city(protocol.LocalizedName{EN: "Novosibirsk", RU: "Новосибирск", UK: "Новосибірськ"}, 80),
	},
	"Ukraine": {
		city(protocol.LocalizedName{EN: "Kyiv", RU: "Киев", UK: "Київ"}, 120),
		city(protocol.LocalizedName{EN: "Lviv", RU: "Львов", UK: "Львів"}, 100),
		city(protocol.LocalizedName{EN: "Kharkiv", RU: "Харьков", UK: "Харків"}, 90),
		city(protocol.LocalizedName{EN: "Odesa", RU: "Одесса", UK: "Одеса"}, 80),
	},
	"USA": {
		city(protocol.LocalizedName{EN: "Washington DC", RU: "Вашингтон ДС", UK: "Вашингтон ДС"}, 120),
		city(protocol.LocalizedName{EN: "New York", RU: "Нью-Йорк", UK: "Нью-Йорк"}, 100),
		city(protocol.LocalizedName{EN: "San Francisco", RU: "Сан-Франциско", UK: "Сан-Франциско"}, 90),
		city(protocol.LocalizedName{EN: "Las Vegas", RU: "Лас-Вегас", UK: "Лас-Вегас"}, 80),
	},
}

// StartingCities returns a fresh copy of a country's initial cities so no
// two rounds ever share mutable city state.
func StartingCities(country string) []protocol.City {
	if template, ok := startingCities[country]; ok {
		cities := make([]protocol.City, len(template))
		copy(cities, template)
		return cities
	}

	cities := make([]protocol.City, 0, 4)
	for i := 1; i <= 4; i++ {
		cities = append(cities, city(protocol.LocalizedName{
			EN: fmt.Sprintf("%s City %d", country, i),
			RU: fmt.Sprintf("%s Город %d", country, i),
			UK: fmt.Sprintf("%s Місто %d", country, i),
		}, 100))
	}
	return cities
}
