package models

import "strings"

type choiceKind int

const (
	choiceUnspecified choiceKind = iota
	choiceCatalog
	choiceCustom
)

// CatalogChoice is either a catalog reference, a free-text name, or unspecified.
type CatalogChoice struct {
	kind      choiceKind
	catalogID int64
	custom    string
}

func CatalogRef(id int64) CatalogChoice {
	return CatalogChoice{kind: choiceCatalog, catalogID: id}
}

func CustomName(name string) CatalogChoice {
	name = strings.TrimSpace(name)
	if name == "" {
		return Unspecified()
	}
	return CatalogChoice{kind: choiceCustom, custom: name}
}

func Unspecified() CatalogChoice {
	return CatalogChoice{}
}

// ResolveCatalogChoice turns raw input into a choice. A catalog reference wins
// over custom text.
func ResolveCatalogChoice(catalogID *int64, custom string) CatalogChoice {
	if catalogID != nil && *catalogID > 0 {
		return CatalogRef(*catalogID)
	}
	return CustomName(custom)
}

func (c CatalogChoice) IsCatalog() bool     { return c.kind == choiceCatalog }
func (c CatalogChoice) IsCustom() bool      { return c.kind == choiceCustom }
func (c CatalogChoice) IsUnspecified() bool { return c.kind == choiceUnspecified }

// CatalogID returns the referenced catalog row, if any.
func (c CatalogChoice) CatalogID() (int64, bool) {
	return c.catalogID, c.kind == choiceCatalog
}

// Custom returns the free-text name, if any.
func (c CatalogChoice) Custom() (string, bool) {
	return c.custom, c.kind == choiceCustom
}

// columns maps the choice onto the pair of persisted columns.
func (c CatalogChoice) columns() (*int64, string) {
	switch c.kind {
	case choiceCatalog:
		id := c.catalogID
		return &id, ""
	case choiceCustom:
		return nil, c.custom
	default:
		return nil, ""
	}
}

func choiceFromColumns(catalogID *int64, custom string) CatalogChoice {
	return ResolveCatalogChoice(catalogID, custom)
}
