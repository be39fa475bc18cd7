package model

import (
	"strings"
	"time"
)

// Column names of the members table. The CSV importer and the storage layer
// both address fields through these names.
const (
	ColumnCode         = "code"
	ColumnFirstName    = "first_name"
	ColumnLastName     = "last_name"
	ColumnBirthDate    = "birth_date"
	ColumnGender       = "gender"
	ColumnAddress      = "address"
	ColumnPostalCode   = "postal_code"
	ColumnCity         = "city"
	ColumnCountry      = "country"
	ColumnPhoneHome    = "phone_home"
	ColumnPhoneOther   = "phone_other"
	ColumnPhoneMobile  = "phone_mobile"
	ColumnPhoneMobile2 = "phone_mobile_2"
	ColumnEmail        = "email"
	ColumnEmail2       = "email_2"
	ColumnLastLicense  = "last_license"
)

// GenderMale and GenderFemale are the two stored gender codes. Any other
// value is treated as unknown.
const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// CollectionAddress is the resource address of the whole members collection.
// A single member is addressed as CollectionAddress + "/" + code.
const CollectionAddress = "members"

// BirthDateFormat is the display format of the birth date ('dd/mm/yyyy').
const BirthDateFormat = "02/01/2006"

// Member is the data structure for a federation member. The license code is
// the identity of a member: 6 digits, stored as a string because it may start
// with some '0'. Code, first name and last name are required; everything else
// is optional.
type Member struct {
	Id           int64   `json:"id"                     db:"id"`
	Code         string  `json:"code"                   db:"code"`
	FirstName    string  `json:"firstname"              db:"first_name"`
	LastName     string  `json:"lastname"               db:"last_name"`
	BirthDate    *string `json:"birthdate,omitempty"    db:"birth_date"`
	Gender       *string `json:"gender,omitempty"       db:"gender"`
	Address      *string `json:"address,omitempty"      db:"address"`
	PostalCode   *string `json:"postalcode,omitempty"   db:"postal_code"`
	City         *string `json:"city,omitempty"         db:"city"`
	Country      *string `json:"country,omitempty"      db:"country"`
	PhoneHome    *string `json:"phonehome,omitempty"    db:"phone_home"`
	PhoneOther   *string `json:"phoneother,omitempty"   db:"phone_other"`
	PhoneMobile  *string `json:"phonemobile,omitempty"  db:"phone_mobile"`
	PhoneMobile2 *string `json:"phonemobile2,omitempty" db:"phone_mobile_2"`
	Email        *string `json:"email,omitempty"        db:"email"`
	Email2       *string `json:"email2,omitempty"       db:"email_2"`
	LastLicense  *string `json:"lastlicense,omitempty"  db:"last_license"`
}

// ResourceAddress returns the address identifying this member
// ("members/{code}").
func (m Member) ResourceAddress() string {
	return CollectionAddress + "/" + m.Code
}

// BirthDateTime parses the member's birth date. It returns false if the birth
// date is absent or does not match the 'dd/mm/yyyy' format.
func (m Member) BirthDateTime() (time.Time, bool) {
	if m.BirthDate == nil {
		return time.Time{}, false
	}
	birthDate, err := time.Parse(BirthDateFormat, *m.BirthDate)
	if err != nil {
		return time.Time{}, false
	}
	return birthDate, true
}

// Age returns the age of the member in whole elapsed years as of the given
// time. It returns false if the birth date is not usable.
func (m Member) Age(now time.Time) (int, bool) {
	birthDate, ok := m.BirthDateTime()
	if !ok {
		return 0, false
	}
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	return years, true
}

// CalculateCategory returns the competition category of the member for the
// season the given time belongs to. The season year increments in September:
// from then on, members compete in the category of the age they reach at the
// end of the following season year.
func (m Member) CalculateCategory(now time.Time) Category {
	birthDate, ok := m.BirthDateTime()
	if !ok {
		return CategoryUnknown
	}
	seasonYear := now.Year()
	if now.Month() >= time.September {
		seasonYear++
	}
	return CategoryForAge(seasonYear - birthDate.Year())
}

// IsMale returns true if the member is a male.
func (m Member) IsMale() bool {
	return m.Gender != nil && *m.Gender == GenderMale
}

// IsFemale returns true if the member is a female.
func (m Member) IsFemale() bool {
	return m.Gender != nil && *m.Gender == GenderFemale
}

// FullName returns the display name of the member (first name + last name).
func (m Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// FullAddress returns the postal address of the member: the address line(s),
// then "postalCode city", then the country on its own line if there is one.
func (m Member) FullAddress() string {
	var fullAddress strings.Builder
	fullAddress.WriteString(str(m.Address))
	fullAddress.WriteString("\n")
	fullAddress.WriteString(str(m.PostalCode))
	fullAddress.WriteString(" ")
	fullAddress.WriteString(str(m.City))
	if str(m.Country) != "" {
		fullAddress.WriteString("\n")
		fullAddress.WriteString(str(m.Country))
	}
	return fullAddress.String()
}

// str dereferences an optional field, mapping absent to the empty string.
func str(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
