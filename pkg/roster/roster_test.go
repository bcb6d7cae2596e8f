package roster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func points(v int) *int { return &v }

func TestNormalizeUSNIsFixedPoint(t *testing.T) {
	got := NormalizeUSN(" pes1ug20cs001 ")
	assert.Equal(t, "PES1UG20CS001", got)
	assert.Equal(t, got, NormalizeUSN(got))
}

func TestDecodeCSVWithoutPointsColumn(t *testing.T) {
	r, err := Decode([]byte("Student USN,Name\ncs001,Asha\n cs002 ,Ravi\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, r.Format)
	assert.Equal(t, []string{"CS001", "CS002"}, r.USNs())
	assert.Nil(t, r.Records[0].Points)
	assert.Empty(t, r.PointsColumn)
}

func TestDecodeFindsHeaderBelowTitleRows(t *testing.T) {
	doc := "Hackathon 2024 attendance\n\nName,USN,Points Awarded\nAsha,cs001,25\nRavi,cs002,\nMeera,cs003,12.6\nDev,cs004,-3\nNia,cs005,abc\n"
	r, err := Decode([]byte(doc), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, r.HeaderRow, "blank lines are not counted")
	assert.Equal(t, "Points Awarded", r.PointsColumn)
	require.Len(t, r.Records, 5)
	assert.Equal(t, points(25), r.Records[0].Points)
	assert.Nil(t, r.Records[1].Points)
	assert.Equal(t, points(13), r.Records[2].Points)
	assert.Nil(t, r.Records[3].Points)
	assert.Nil(t, r.Records[4].Points)
}

func TestDecodeIgnoresPointsBeyondIntegerRange(t *testing.T) {
	r, err := Decode([]byte("usn,points\ncs001,2147483647\ncs002,2147483648\ncs003,1e300\ncs004,NaN\ncs005,+Inf\n"), 0)
	require.NoError(t, err)
	require.Len(t, r.Records, 5)
	assert.Equal(t, points(2147483647), r.Records[0].Points)
	for _, rec := range r.Records[1:] {
		assert.Nil(t, rec.Points, rec.USN)
	}
}

func TestDecodeDropsBlankAndDuplicateUSNs(t *testing.T) {
	r, err := Decode([]byte("usn,score\ncs001,5\n,7\nCS001 ,9\ncs002,1\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"CS001", "CS002"}, r.USNs())
	assert.Equal(t, points(5), r.Records[0].Points)
	assert.Equal(t, 2, r.Skipped)
}

func TestDecodeWithoutHeaderFails(t *testing.T) {
	_, err := Decode([]byte("name,roll\nAsha,cs001\n"), 0)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestDecodeHeaderOutsideScanWindowFails(t *testing.T) {
	doc := "a\nb\nc\nusn\ncs001\n"
	_, err := Decode([]byte(doc), 2)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestDecodeEmptyInputs(t *testing.T) {
	_, err := Decode(nil, 0)
	require.ErrorIs(t, err, ErrEmpty)

	_, err = Decode([]byte("USN,Points\n,\n"), 0)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestDecodeRejectsHTML(t *testing.T) {
	_, err := Decode([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"), 0)
	require.ErrorIs(t, err, ErrUnreadable)
}

func TestDecodeXLSX(t *testing.T) {
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Participants"},
		{"Name", "usn", "Points"},
		{"Asha", "pes1ug20cs001", 25},
		{"Ravi", "pes1ug20cs002", ""},
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	r, err := Decode(buf.Bytes(), 0)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, r.Format)
	assert.Equal(t, 2, r.HeaderRow)
	assert.Equal(t, []string{"PES1UG20CS001", "PES1UG20CS002"}, r.USNs())
	assert.Equal(t, points(25), r.Records[0].Points)
	assert.Nil(t, r.Records[1].Points)
}

func TestDecodeIsIdempotent(t *testing.T) {
	doc := []byte("USN,Points\ncs001,3\ncs002,\n")
	first, err := Decode(doc, 0)
	require.NoError(t, err)
	second, err := Decode(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
