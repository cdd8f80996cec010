package incident

import (
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/civicdesk/internal/model"
)

func strPtr(s string) *string { return &s }

func sampleIncidents() []model.Incident {
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return []model.Incident{
		{
			ID: "i4", Title: "Pothole on Main St", Description: "Deep hole near the crossing",
			Address: strPtr("12 Main St"), Status: model.IncidentStatusPending, Priority: model.IncidentPriorityHigh,
			CreatedAt: base.Add(3 * time.Hour),
			Category:  &model.Category{ID: "c1", Name: "Roads", Color: "#ff8800"},
			Reporter:  &model.Reporter{FullName: "Hanako Sato", Email: "hanako@example.com"},
		},
		{
			ID: "i3", Title: "Broken streetlight", Description: "Lamp flickers at night",
			Address: nil, Status: model.IncidentStatusInProgress, Priority: model.IncidentPriorityMedium,
			CreatedAt: base.Add(2 * time.Hour),
			Category:  &model.Category{ID: "c2", Name: "Lighting", Color: "#ffee00"},
			Reporter:  &model.Reporter{FullName: "Taro Suzuki"},
		},
		{
			ID: "i2", Title: "Graffiti", Description: "Paint on the MAIN library wall",
			Address: strPtr("Library Sq"), Status: model.IncidentStatusResolved, Priority: model.IncidentPriorityLow,
			CreatedAt: base.Add(time.Hour),
		},
		{
			ID: "i1", Title: "Fallen tree", Description: "Blocking the path",
			Address: strPtr("Park Ave"), Status: model.IncidentStatusPending, Priority: model.IncidentPriorityUrgent,
			CreatedAt: base,
		},
	}
}

func ids(list []model.Incident) []string {
	out := make([]string, 0, len(list))
	for _, inc := range list {
		out = append(out, inc.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"条件なしは全件", Criteria{Status: StatusAll}, []string{"i4", "i3", "i2", "i1"}},
		{"ステータス未指定は全件", Criteria{}, []string{"i4", "i3", "i2", "i1"}},
		{"大文字小文字を区別しないタイトル検索", Criteria{Search: "POTHOLE", Status: StatusAll}, []string{"i4"}},
		{"説明文に一致", Criteria{Search: "flickers", Status: StatusAll}, []string{"i3"}},
		{"住所に一致", Criteria{Search: "park", Status: StatusAll}, []string{"i1"}},
		{"複数フィールドにまたがる一致", Criteria{Search: "main", Status: StatusAll}, []string{"i4", "i2"}},
		{"ステータスのみ", Criteria{Status: StatusFilter(model.IncidentStatusPending)}, []string{"i4", "i1"}},
		{"検索語とステータスのAND", Criteria{Search: "main", Status: StatusFilter(model.IncidentStatusResolved)}, []string{"i2"}},
		{"一致なし", Criteria{Search: "volcano", Status: StatusAll}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(sampleIncidents(), tt.criteria))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Filter() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestFilter_PendingScenario は検索語なし・pending指定で順序を保ったまま絞り込まれることを検証する。
func TestFilter_PendingScenario(t *testing.T) {
	list := []model.Incident{
		{ID: "a", Status: model.IncidentStatusPending},
		{ID: "b", Status: model.IncidentStatusResolved},
		{ID: "c", Status: model.IncidentStatusPending},
	}
	got := ids(Filter(list, Criteria{Search: "", Status: StatusFilter(model.IncidentStatusPending)}))
	if want := []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Filter() = %v, want %v", got, want)
	}
}

func TestFilter_NilAddressNeverMatchesNonEmptyTerm(t *testing.T) {
	list := []model.Incident{{ID: "x", Title: "t", Description: "d", Address: nil, Status: model.IncidentStatusPending}}

	for _, term := range []string{"a", "nil", "<nil>", " "} {
		if got := Filter(list, Criteria{Search: term, Status: StatusAll}); len(got) != 0 {
			t.Errorf("検索語 %q で住所なしの通報が一致しました", term)
		}
	}
	if got := Filter(list, Criteria{Search: "", Status: StatusAll}); len(got) != 1 {
		t.Error("空の検索語で住所なしの通報が除外されました")
	}
}

func TestFilter_SearchAndStatusCommute(t *testing.T) {
	list := sampleIncidents()
	for _, term := range []string{"", "main", "the", "zzz"} {
		for _, status := range StatusFilters() {
			searchFirst := Filter(Filter(list, Criteria{Search: term, Status: StatusAll}), Criteria{Status: status})
			statusFirst := Filter(Filter(list, Criteria{Status: status}), Criteria{Search: term, Status: StatusAll})
			combined := Filter(list, Criteria{Search: term, Status: status})

			if !reflect.DeepEqual(ids(searchFirst), ids(statusFirst)) {
				t.Errorf("term=%q status=%q: 適用順で結果が異なります %v vs %v", term, status, ids(searchFirst), ids(statusFirst))
			}
			if !reflect.DeepEqual(ids(searchFirst), ids(combined)) {
				t.Errorf("term=%q status=%q: 同時適用と結果が異なります %v vs %v", term, status, ids(searchFirst), ids(combined))
			}
		}
	}
}

func TestFilter_IdentityAndNoMutation(t *testing.T) {
	list := sampleIncidents()
	before := ids(list)

	got := Filter(list, Criteria{Search: "", Status: StatusAll})
	if !reflect.DeepEqual(got, list) {
		t.Error("条件なしの絞り込みが恒等写像になっていません")
	}

	_ = Filter(list, Criteria{Search: "main", Status: StatusFilter(model.IncidentStatusPending)})
	if !reflect.DeepEqual(ids(list), before) {
		t.Error("入力スライスが変更されています")
	}
}

func TestFilter_EmptyInputReturnsEmptySlice(t *testing.T) {
	got := Filter(nil, Criteria{Status: StatusAll})
	if got == nil || len(got) != 0 {
		t.Errorf("Filter(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestParseStatusFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    StatusFilter
		wantErr bool
	}{
		{"", StatusAll, false},
		{"all", StatusAll, false},
		{" Pending ", StatusFilter(model.IncidentStatusPending), false},
		{"in_progress", StatusFilter(model.IncidentStatusInProgress), false},
		{"closed", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatusFilter(tt.in)
		if tt.wantErr {
			if !model.IsCode(err, model.ErrCodeInvalidStatus) {
				t.Errorf("ParseStatusFilter(%q) error = %v, want INVALID_STATUS", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStatusFilter(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestStatusFilter_NextCycles(t *testing.T) {
	f := StatusAll
	seen := []StatusFilter{f}
	for i := 0; i < len(model.IncidentStatuses); i++ {
		f = f.Next()
		seen = append(seen, f)
	}
	if !reflect.DeepEqual(seen, StatusFilters()) {
		t.Errorf("巡回順 = %v, want %v", seen, StatusFilters())
	}
	if f.Next() != StatusAll {
		t.Errorf("末尾の次 = %q, want %q", f.Next(), StatusAll)
	}
	if StatusFilter("bogus").Next() != StatusAll {
		t.Error("未知の条件の次がStatusAllになっていません")
	}
}

func TestPresent_ReporterVisibleOnlyToAuthority(t *testing.T) {
	list := sampleIncidents()

	viewers := map[string]*model.Profile{
		"未ログイン":   nil,
		"citizen": {ID: "v1", Role: model.RoleCitizen},
	}
	for name, viewer := range viewers {
		for _, row := range Present(list, viewer) {
			if row.ReporterName != "" {
				t.Errorf("%s: 通報者名が表示されています: %q", name, row.ReporterName)
			}
		}
	}

	rows := Present(list, &model.Profile{ID: "v2", Role: model.RoleAuthority})
	if rows[0].ReporterName != "Hanako Sato" {
		t.Errorf("authorityに通報者名が表示されていません: %q", rows[0].ReporterName)
	}
	if rows[2].ReporterName != "" {
		t.Errorf("通報者なしの行に名前があります: %q", rows[2].ReporterName)
	}
}

func TestRedactReporters(t *testing.T) {
	list := sampleIncidents()

	redacted := RedactReporters(list, &model.Profile{ID: "v1", Role: model.RoleCitizen})
	for _, inc := range redacted {
		if inc.Reporter != nil {
			t.Errorf("citizenに通報者が含まれています: %s", inc.ID)
		}
	}
	if list[0].Reporter == nil {
		t.Error("元の一覧の通報者が消えています")
	}
	if got := RedactReporters(list, nil); got[0].Reporter != nil {
		t.Error("未ログインに通報者が含まれています")
	}
	if got := RedactReporters(list, &model.Profile{ID: "v2", Role: model.RoleAuthority}); got[0].Reporter == nil {
		t.Error("authorityに通報者が含まれていません")
	}
}

func TestPresent_MapsFieldsAndSanitizes(t *testing.T) {
	list := []model.Incident{{
		ID: "i1", Title: "<b>Flood</b>", Description: "Water\x1b[2J rising",
		Address: strPtr("River <i>Rd</i>"), Status: model.IncidentStatusPending,
		Category: &model.Category{Name: "Water", Color: "#0000ff"},
	}, {
		ID: "i2", Title: "No address",
	}}

	rows := Present(list, nil)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	r := rows[0]
	if r.Title != "Flood" || r.Description != "Water[2J rising" || r.Address != "River Rd" {
		t.Errorf("サニタイズ結果が不正: %+v", r)
	}
	if r.CategoryName != "Water" || r.CategoryColor != "#0000ff" {
		t.Errorf("カテゴリが不正: %+v", r)
	}
	if rows[1].Address != "" || rows[1].CategoryName != "" {
		t.Errorf("欠損値の変換が不正: %+v", rows[1])
	}
}
