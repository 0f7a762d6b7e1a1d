package core

import (
	"fmt"
	"regexp"
	"strings"
)

var orderingFieldRegex = regexp.MustCompile(`^[a-z_]+$`)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CleanOrderings keeps the orderings whose field is in allowed.
func CleanOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	if len(orderings) == 0 {
		return nil
	}
	cleaned := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if !orderingFieldRegex.MatchString(ord.Field) {
			continue
		}
		for _, fld := range allowed {
			if ord.Field == fld {
				cleaned = append(cleaned, ord)
				break
			}
		}
	}
	return cleaned
}

// OrderByClauses formats orderings for an ORDER BY, qualifying each field with table if set.
func OrderByClauses(table string, orderings []DBOrdering) []string {
	clauses := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		if table != "" {
			clauses = append(clauses, fmt.Sprintf("%s.%s", table, ord.String()))
		} else {
			clauses = append(clauses, ord.String())
		}
	}
	return clauses
}

// ParseOrdering parses "a,-b" into orderings: "-" marks a descending field.
func ParseOrdering(val string) []DBOrdering {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	var orderings []DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}
