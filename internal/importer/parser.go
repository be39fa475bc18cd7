package importer

import (
	"strings"
	"unicode"

	"github.com/vbehar/ffckmembers/internal/model"
)

// Separator is the CSV separator used by the federation export. There is no
// escaping: a separator inside a field value is not representable.
const Separator = ";"

// DefaultHeaderMapping maps the header labels of the federation CSV export
// to the members table columns. Labels are case-sensitive; columns whose
// label is not in the mapping contribute nothing. The export repeats the
// ADRESSE header for the second address line, hence the dedicated merge rule
// in ParseRow.
var DefaultHeaderMapping = map[string]string{
	"CODE ADHERENT":    model.ColumnCode,
	"NOM":              model.ColumnLastName,
	"PRENOM":           model.ColumnFirstName,
	"NE LE":            model.ColumnBirthDate,
	"SEXE":             model.ColumnGender,
	"ADRESSE":          model.ColumnAddress,
	"CODE POSTAL":      model.ColumnPostalCode,
	"VILLE":            model.ColumnCity,
	"PAYS":             model.ColumnCountry,
	"TEL":              model.ColumnPhoneHome,
	"AUTRE TEL":        model.ColumnPhoneOther,
	"MOBILE":           model.ColumnPhoneMobile,
	"AUTRE MOBILE":     model.ColumnPhoneMobile2,
	"EMAIL":            model.ColumnEmail,
	"AUTRE EMAIL":      model.ColumnEmail2,
	"DERNIERE LICENCE": model.ColumnLastLicense,
}

// Row is the result of parsing one CSV line: either Empty (the line had no
// recognized field, to be skipped) or a member record. Keeping the two cases
// explicit avoids confusing a skippable row with the end of the source.
type Row struct {
	Member model.Member
	Empty  bool
}

// Parser converts delimited text lines into normalized member records, using
// a header line parsed beforehand.
type Parser struct {
	mapping map[string]string
	header  []string
}

// NewParser builds a parser with the given header label mapping. A nil
// mapping means the federation default.
func NewParser(mapping map[string]string) *Parser {
	if mapping == nil {
		mapping = DefaultHeaderMapping
	}
	return &Parser{mapping: mapping}
}

// ParseHeader splits the header line into its labels. It must be called with
// the first line of the source, before any ParseRow call.
func (p *Parser) ParseHeader(line string) {
	p.header = strings.Split(line, Separator)
}

// ParseRow converts one CSV line into a Row, mapping each token to the
// column its header label points at and normalizing the value. A row shorter
// than the header simply yields fewer fields.
func (p *Parser) ParseRow(line string) Row {
	tokens := strings.Split(line, Separator)
	values := make(map[string]string)
	for i, value := range tokens {
		if i >= len(p.header) {
			break
		}
		column, recognized := p.mapping[p.header[i]]
		if !recognized {
			continue
		}

		switch column {
		// clean names, cities & countries
		case model.ColumnFirstName, model.ColumnLastName, model.ColumnCity, model.ColumnCountry:
			value = Capitalize(value)

		// clean phone numbers
		case model.ColumnPhoneHome, model.ColumnPhoneOther, model.ColumnPhoneMobile, model.ColumnPhoneMobile2:
			value = normalizePhone(value)

		// fix gender code (H = 'Homme')
		case model.ColumnGender:
			if value == "H" {
				value = model.GenderMale
			}

		// address has the same header twice in the CSV...
		case model.ColumnAddress:
			value = strings.ToLower(value)
			if previous, seen := values[column]; seen {
				if value == "" {
					value = previous
				} else {
					value = previous + "\n" + value
				}
			}
		}

		values[column] = value
	}

	if len(values) == 0 {
		return Row{Empty: true}
	}
	return Row{Member: memberFromValues(values)}
}

// memberFromValues materializes a member record from the recognized fields
// of a row.
func memberFromValues(values map[string]string) model.Member {
	var member model.Member
	for column, value := range values {
		switch column {
		case model.ColumnCode:
			member.Code = value
		case model.ColumnFirstName:
			member.FirstName = value
		case model.ColumnLastName:
			member.LastName = value
		case model.ColumnBirthDate:
			member.BirthDate = opt(value)
		case model.ColumnGender:
			member.Gender = opt(value)
		case model.ColumnAddress:
			member.Address = opt(value)
		case model.ColumnPostalCode:
			member.PostalCode = opt(value)
		case model.ColumnCity:
			member.City = opt(value)
		case model.ColumnCountry:
			member.Country = opt(value)
		case model.ColumnPhoneHome:
			member.PhoneHome = opt(value)
		case model.ColumnPhoneOther:
			member.PhoneOther = opt(value)
		case model.ColumnPhoneMobile:
			member.PhoneMobile = opt(value)
		case model.ColumnPhoneMobile2:
			member.PhoneMobile2 = opt(value)
		case model.ColumnEmail:
			member.Email = opt(value)
		case model.ColumnEmail2:
			member.Email2 = opt(value)
		case model.ColumnLastLicense:
			member.LastLicense = opt(value)
		}
	}
	return member
}

// capitalizeSeparators are the characters after which Capitalize upper-cases
// the next letter. Note that the apostrophe is not one of them.
var capitalizeSeparators = map[rune]bool{
	' ': true, '-': true, '_': true, ',': true, '.': true,
}

// Capitalize lower-cases the whole input and then upper-cases its first
// letter and every letter following a separator.
func Capitalize(input string) string {
	if input == "" {
		return ""
	}
	var output strings.Builder
	needToUpperNext := true
	for _, r := range strings.ToLower(input) {
		if needToUpperNext {
			output.WriteRune(unicode.ToUpper(r))
			needToUpperNext = false
		} else {
			output.WriteRune(r)
		}
		if capitalizeSeparators[r] {
			needToUpperNext = true
		}
	}
	return output.String()
}

// normalizePhone strips the dots of a phone number and rewrites a leading
// '0' to the international prefix. Empty values pass through.
func normalizePhone(value string) string {
	if value == "" {
		return value
	}
	value = strings.ReplaceAll(value, ".", "")
	if strings.HasPrefix(value, "0") {
		value = "+33" + value[1:]
	}
	return value
}

// opt builds an optional field value.
func opt(value string) *string {
	return &value
}
