package feasibility

import (
	"strings"
)

// AddressInput is the service address of one feasibility request.
type AddressInput struct {
	Region  string
	Commune string
	Street  string
	Number  string
	Tower   string
	Unit    string
}

// ParseAddress reads "Region, Commune, Street, Number[, Tower[, Unit]]".
// Fields past the sixth are ignored.
func ParseAddress(raw string) (AddressInput, error) {
	parts := strings.Split(raw, ",")
	field := func(i int) string {
		if i < len(parts) {
			return strings.TrimSpace(parts[i])
		}
		return ""
	}

	addr := AddressInput{
		Region:  field(0),
		Commune: field(1),
		Street:  field(2),
		Number:  field(3),
		Tower:   field(4),
		Unit:    field(5),
	}

	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"region", addr.Region},
		{"commune", addr.Commune},
		{"street", addr.Street},
		{"number", addr.Number},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return AddressInput{}, &ValidationError{Input: raw, Missing: missing}
	}
	return addr, nil
}

// StreetLine is the text typed into the address field.
func (a AddressInput) StreetLine() string {
	return a.Street + " " + a.Number
}

func (a AddressInput) String() string {
	parts := []string{a.StreetLine(), a.Commune, a.Region}
	if a.Tower != "" {
		parts = append(parts, "torre "+a.Tower)
	}
	if a.Unit != "" {
		parts = append(parts, "depto "+a.Unit)
	}
	return strings.Join(parts, ", ")
}
