package km24

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// ID is a platform identifier. The API sends numbers, but older cache
// files and hand-written snapshots sometimes carry them as strings.
// A non-numeric string decodes to 0.
type ID int

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*id = 0
			return nil
		}
		*id = ID(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*id = ID(int(f))
	return nil
}

// Part kinds as reported by modules/basic.
const (
	PartGenericValue    = "generic_value"
	PartWebSource       = "web_source"
	PartMunicipality    = "municipality"
	PartIndustry        = "industry"
	PartCompany         = "company"
	PartAmountSelection = "amount_selection"
	PartSearchString    = "search_string"
	PartHitLogic        = "hit_logic"
)

// Part is one filter dimension of a module.
type Part struct {
	ID                ID     `json:"id"`
	Part              string `json:"part"`
	Name              string `json:"name"`
	Info              string `json:"info,omitempty"`
	CanSelectMultiple bool   `json:"canSelectMultiple,omitempty"`
	Order             int    `json:"order,omitempty"`
}

type Module struct {
	ID               ID     `json:"id"`
	Title            string `json:"title"`
	Slug             string `json:"slug,omitempty"`
	Description      string `json:"description,omitempty"`
	ShortDescription string `json:"shortDescription,omitempty"`
	LongDescription  string `json:"longDescription,omitempty"`
	Emoji            string `json:"emoji,omitempty"`
	ColorHex         string `json:"colorHex,omitempty"`
	Parts            []Part `json:"parts,omitempty"`
}

// HasPart reports whether the module declares a part of the given kind.
func (m Module) HasPart(kind string) bool {
	for _, p := range m.Parts {
		if p.Part == kind {
			return true
		}
	}
	return false
}

func (m Module) IsWebSource() bool { return m.HasPart(PartWebSource) }

type Municipality struct {
	ID         ID       `json:"id"`
	Name       string   `json:"name"`
	Region     string   `json:"region,omitempty"`
	Population *int     `json:"population,omitempty"`
	AreaKM2    *float64 `json:"area_km2,omitempty" yaml:"area_km2"`
}

type BranchCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Level       int    `json:"level,omitempty"`
}

type Region struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CourtDistrict struct {
	ID     ID     `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
}

type GenericValue struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type WebSource struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}
