package model

// Category is the age bracket in which a member competes during a season,
// based on their age as of the end of that season (SEASON_YEAR/12/31).
type Category int

const (
	CategoryUnknown Category = iota
	CategoryTooYoung
	CategoryPoussin1
	CategoryPoussin2
	CategoryBenjamin1
	CategoryBenjamin2
	CategoryMinime1
	CategoryMinime2
	CategoryCadet1
	CategoryCadet2
	CategoryJunior1
	CategoryJunior2
	CategorySenior
	CategoryVeteran1
	CategoryVeteran2
	CategoryVeteran3
	CategoryTooOld
)

var categoryLabels = map[Category]string{
	CategoryUnknown:   "unknown",
	CategoryTooYoung:  "too young",
	CategoryPoussin1:  "poussin 1",
	CategoryPoussin2:  "poussin 2",
	CategoryBenjamin1: "benjamin 1",
	CategoryBenjamin2: "benjamin 2",
	CategoryMinime1:   "minime 1",
	CategoryMinime2:   "minime 2",
	CategoryCadet1:    "cadet 1",
	CategoryCadet2:    "cadet 2",
	CategoryJunior1:   "junior 1",
	CategoryJunior2:   "junior 2",
	CategorySenior:    "senior",
	CategoryVeteran1:  "veteran 1",
	CategoryVeteran2:  "veteran 2",
	CategoryVeteran3:  "veteran 3",
	CategoryTooOld:    "too old",
}

func (c Category) String() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return categoryLabels[CategoryUnknown]
}

// CategoryForAge returns the category for the given member age, as of the end
// of the season. This is a competition eligibility rule of the federation:
// one category rung per age from 9 to 18, then wider brackets.
func CategoryForAge(age int) Category {
	switch age {
	case 9:
		return CategoryPoussin1
	case 10:
		return CategoryPoussin2
	case 11:
		return CategoryBenjamin1
	case 12:
		return CategoryBenjamin2
	case 13:
		return CategoryMinime1
	case 14:
		return CategoryMinime2
	case 15:
		return CategoryCadet1
	case 16:
		return CategoryCadet2
	case 17:
		return CategoryJunior1
	case 18:
		return CategoryJunior2
	}
	switch {
	case age < 9:
		return CategoryTooYoung
	case age < 35:
		return CategorySenior
	case age < 40:
		return CategoryVeteran1
	case age < 45:
		return CategoryVeteran2
	case age < 50:
		return CategoryVeteran3
	default:
		return CategoryTooOld
	}
}
