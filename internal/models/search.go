package models

// Policy data tables exposed to vector search.
const (
	TableGeneralConditions = "general_conditions"
	TableBenefits          = "benefits"
	TableBenefitConditions = "benefit_conditions"
	TableOriginalText      = "original_text"
)

// RoutableTables are the tables the routing engine may select. Raw policy
// text is searchable directly but excluded from routing.
func RoutableTables() []string {
	return []string{TableGeneralConditions, TableBenefits, TableBenefitConditions}
}

// IsRoutableTable reports whether name is a valid routing target.
func IsRoutableTable(name string) bool {
	switch name {
	case TableGeneralConditions, TableBenefits, TableBenefitConditions:
		return true
	}
	return false
}

// SearchableTables lists every table with a vector search procedure.
func SearchableTables() []string {
	return []string{TableGeneralConditions, TableBenefits, TableBenefitConditions, TableOriginalText}
}

// IsSearchableTable reports whether name has a vector search procedure.
func IsSearchableTable(name string) bool {
	return IsRoutableTable(name) || name == TableOriginalText
}

// PolicyMatch is one vector search hit, tagged with its source table.
// SimilarityScore is nil for rows the backend returned without a score;
// merged result sets order scored rows first.
type PolicyMatch struct {
	Table           string         `json:"table"`
	SimilarityScore *float64       `json:"similarity_score,omitempty"`
	Fields          map[string]any `json:"fields"`
}
