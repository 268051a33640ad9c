package metadata

import (
	"strconv"
	"strings"
)

// Reportable lists the metadata columns downstream statistics stages report
// on, split by kind.
type Reportable struct {
	Numeric     []string
	Categorical []string
}

// Classify inspects every non-identifier column. A column whose non-null
// values all parse as numbers is numeric; a column with at least two distinct
// values is categorical. Columns with a single distinct value carry no
// information and are left out.
func Classify(s *Snapshot) *Reportable {
	r := &Reportable{}
	for i, col := range s.Columns {
		if i == 0 {
			continue
		}
		values, _ := s.Column(col)
		distinct := make(map[string]struct{})
		numeric := true
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" || v == DefaultNullValue {
				continue
			}
			distinct[v] = struct{}{}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		switch {
		case len(distinct) < 2:
		case numeric:
			r.Numeric = append(r.Numeric, col)
		default:
			r.Categorical = append(r.Categorical, col)
		}
	}
	return r
}
