package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset())
}

func TestParams_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		want Params
	}{
		{"zero value", Params{}, Params{Page: 1, PerPage: 20}},
		{"negative", Params{Page: -3, PerPage: -1}, Params{Page: 1, PerPage: 20}},
		{"capped", Params{Page: 2, PerPage: 500}, Params{Page: 2, PerPage: 100}},
		{"valid", Params{Page: 4, PerPage: 10}, Params{Page: 4, PerPage: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestParams_Query(t *testing.T) {
	q := Params{Page: 3, PerPage: 50}.Query()
	assert.Equal(t, "3", q.Get("page"))
	assert.Equal(t, "50", q.Get("per_page"))
	assert.Equal(t, 100, Params{Page: 3, PerPage: 50}.Offset())
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, PerPage: 20}},
		{"?page=3&per_page=50", Params{Page: 3, PerPage: 50}},
		{"?page=-1", Params{Page: 1, PerPage: 20}},
		{"?page=abc&per_page=xyz", Params{Page: 1, PerPage: 20}},
		{"?per_page=101", Params{Page: 1, PerPage: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/media"+tt.query, nil)
			assert.Equal(t, tt.want, FromRequest(req))
		})
	}
}

func TestQueryRoundTripsThroughFromRequest(t *testing.T) {
	p := Params{Page: 7, PerPage: 15}
	req := httptest.NewRequest(http.MethodGet, "/media?"+p.Query().Encode(), nil)
	assert.Equal(t, p, FromRequest(req))
}

func TestNewResult(t *testing.T) {
	r := NewResult([]string{"a", "b"}, 25, Params{Page: 1, PerPage: 10})
	assert.Equal(t, 3, r.TotalPages)
	assert.True(t, r.HasNext)
	assert.False(t, r.HasPrev)

	next, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, Params{Page: 2, PerPage: 10}, next)
}

func TestNewResult_LastPage(t *testing.T) {
	r := NewResult([]string{"x"}, 21, Params{Page: 3, PerPage: 10})
	assert.False(t, r.HasNext)
	assert.True(t, r.HasPrev)

	_, ok := r.Next()
	assert.False(t, ok)
}

func TestNewResult_NilDataBecomesEmpty(t *testing.T) {
	r := NewResult[int](nil, 0, DefaultParams())
	assert.NotNil(t, r.Data)
	assert.Zero(t, r.TotalPages)
}
