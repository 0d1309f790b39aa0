package views

import (
	"bytes"
	"context"
	"testing"

	"github.com/AdamBeresnev/quiniela/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandingsPage(t *testing.T) {
	st := &service.Standings{
		PoolID:   uuid.New(),
		Official: false,
		Decided:  2,
		Matches:  3,
		Rows: []service.StandingRow{
			{Username: "ana", Rank: 1, CorrectCount: 2, Prize: decimal.NewFromInt(300)},
			{Username: "<b>bo</b>", Rank: 2, CorrectCount: 1, Prize: decimal.NewFromInt(75)},
			{Username: "cy", Rank: 2, CorrectCount: 1, Prize: decimal.NewFromInt(75)},
		},
	}

	data := PrepareStandingsData(st)
	require.Len(t, data.Groups, 2)
	assert.Len(t, data.Groups[1].Rows, 2)
	assert.Equal(t, "1", data.Groups[0].Label)
	assert.Equal(t, "T2", data.Groups[1].Label)

	var buf bytes.Buffer
	require.NoError(t, StandingsPage(st).Render(context.Background(), &buf))
	html := buf.String()

	assert.Contains(t, html, "Live standings, not final")
	assert.Contains(t, html, "<td>T2</td>")
	assert.Contains(t, html, "300.00")
	assert.Contains(t, html, "&lt;b&gt;bo&lt;/b&gt;")
	assert.NotContains(t, html, "<b>bo</b>")
}
