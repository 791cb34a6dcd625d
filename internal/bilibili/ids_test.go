package bilibili

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVideoID(t *testing.T) {
	ok := map[string]VideoID{
		"BV1xx411c7mD":   {BVID: "BV1xx411c7mD"},
		" BV1xx411c7mD ": {BVID: "BV1xx411c7mD"},
		"av170001":       {AID: 170001},
		"AV170001":       {AID: 170001},
		"170001":         {AID: 170001},
	}
	for in, want := range ok {
		got, err := ParseVideoID(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "BV123", "bv1xx411c7mD", "av0", "av-1", "BV1xx411c7mD!", "avx"} {
		_, err := ParseVideoID(in)
		require.ErrorIs(t, err, ErrInvalidID, in)
	}
}

func TestVideoID_Keys(t *testing.T) {
	require.Equal(t, "bv:BV1xx411c7mD", VideoID{BVID: "BV1xx411c7mD"}.CacheKey())
	require.Equal(t, "av:170001", VideoID{AID: 170001}.CacheKey())
	require.Equal(t, "av170001", VideoID{AID: 170001}.String())
}

func TestParseMID(t *testing.T) {
	mid, err := ParseMID("208259")
	require.NoError(t, err)
	require.EqualValues(t, 208259, mid)

	for _, in := range []string{"", "0", "-5", "abc", "1.5"} {
		_, err := ParseMID(in)
		require.ErrorIs(t, err, ErrInvalidID, in)
	}
}
