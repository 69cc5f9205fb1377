package phone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "numcheck/pkg/domain-errors"
)

func TestExtractCandidates(t *testing.T) {
	t.Run("splits on commas and newlines", func(t *testing.T) {
		got := ExtractCandidates("+2348012345678, 08023456789\n08031112222")
		assert.Equal(t, []string{"+2348012345678", "08023456789", "08031112222"}, got)
	})

	t.Run("drops fragments without digits", func(t *testing.T) {
		got := ExtractCandidates("hello,\n , 0801 ,\r\nworld")
		assert.Equal(t, []string{"0801"}, got)
	})

	t.Run("empty text yields nothing", func(t *testing.T) {
		assert.Empty(t, ExtractCandidates(""))
	})
}

func TestKindFromFilename(t *testing.T) {
	kind, err := KindFromFilename("numbers.TXT")
	require.NoError(t, err)
	assert.Equal(t, KindText, kind)

	kind, err = KindFromFilename("export.csv")
	require.NoError(t, err)
	assert.Equal(t, KindCSV, kind)

	_, err = KindFromFilename("numbers.xlsx")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestReadCandidates(t *testing.T) {
	t.Run("text file", func(t *testing.T) {
		got, err := ReadCandidates(strings.NewReader("0801\n0802, 0803\n"), KindText)
		require.NoError(t, err)
		assert.Equal(t, []string{"0801", "0802", "0803"}, got)
	})

	t.Run("csv skips header and extra columns", func(t *testing.T) {
		in := "phone,name\n08011111111,Ada\n08022222222,Bayo\n"
		got, err := ReadCandidates(strings.NewReader(in), KindCSV)
		require.NoError(t, err)
		assert.Equal(t, []string{"08011111111", "08022222222"}, got)
	})

	t.Run("csv without header keeps first row", func(t *testing.T) {
		got, err := ReadCandidates(strings.NewReader("0801\n0802\n"), KindCSV)
		require.NoError(t, err)
		assert.Equal(t, []string{"0801", "0802"}, got)
	})

	t.Run("malformed csv is a bad request", func(t *testing.T) {
		_, err := ReadCandidates(strings.NewReader("\"0801\n"), KindCSV)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
