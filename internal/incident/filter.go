// Package incident は通報一覧の取得、絞り込み、表示用データへの変換を提供する。
package incident

import (
	"strings"

	"github.com/hitoshi/civicdesk/internal/model"
)

// StatusFilter は対応状況による絞り込み条件。StatusAllは全件を通す。
type StatusFilter string

// StatusAll は対応状況で絞り込まないことを表す。
const StatusAll StatusFilter = "all"

// StatusFilters は選択可能な絞り込み条件の一覧（表示順）。
func StatusFilters() []StatusFilter {
	filters := []StatusFilter{StatusAll}
	for _, s := range model.IncidentStatuses {
		filters = append(filters, StatusFilter(s))
	}
	return filters
}

// ParseStatusFilter は文字列を絞り込み条件に変換する。空文字列はStatusAll。
func ParseStatusFilter(s string) (StatusFilter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(StatusAll) {
		return StatusAll, nil
	}
	if !model.IncidentStatus(s).Valid() {
		return "", model.NewInvalidStatusError(s)
	}
	return StatusFilter(s), nil
}

// Matches は対応状況が条件に一致するかどうかを返す。
func (f StatusFilter) Matches(status model.IncidentStatus) bool {
	return f == "" || f == StatusAll || model.IncidentStatus(f) == status
}

// Next は表示順で次の絞り込み条件を返す。末尾の次は先頭に戻る。
func (f StatusFilter) Next() StatusFilter {
	filters := StatusFilters()
	for i, candidate := range filters {
		if candidate == f {
			return filters[(i+1)%len(filters)]
		}
	}
	return StatusAll
}

// Criteria は一覧の絞り込み条件。
type Criteria struct {
	// Search はタイトル・説明・住所に対する部分一致検索語（大文字小文字を区別しない）。
	Search string
	Status StatusFilter
}

// Filter は条件に一致する通報を元の順序を保って返す。入力は変更しない。
// 検索語とステータス条件はAND結合される。空の検索語は全件に一致する。
func Filter(list []model.Incident, c Criteria) []model.Incident {
	term := strings.ToLower(c.Search)
	out := make([]model.Incident, 0, len(list))
	for _, inc := range list {
		if !c.Status.Matches(inc.Status) {
			continue
		}
		if !matchesSearch(inc, term) {
			continue
		}
		out = append(out, inc)
	}
	return out
}

// matchesSearch はtermが小文字化済みであることを前提とする。
// 住所がnilの通報は住所では一致しない。
func matchesSearch(inc model.Incident, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(inc.Title), term) {
		return true
	}
	if strings.Contains(strings.ToLower(inc.Description), term) {
		return true
	}
	return inc.Address != nil && strings.Contains(strings.ToLower(*inc.Address), term)
}
