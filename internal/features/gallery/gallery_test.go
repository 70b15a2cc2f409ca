package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchiverCosts_Paid(t *testing.T) {
	html := `<div><p><strong>10,340 GP</strong> <strong>524.28 MiB</strong></p>
		<p><strong>5,170 GP</strong> <strong>262.14 MiB</strong></p></div>`

	cost, err := ParseArchiverCosts(html)
	require.NoError(t, err)
	assert.Equal(t, int64(10340), cost.Org)
	assert.Equal(t, int64(5170), cost.Res)
}

func TestParseArchiverCosts_Free(t *testing.T) {
	// Для бесплатных архивов страница показывает "Free!" вместо стоимости,
	// считаем по размеру: 21 GP за MiB
	html := `<div><p><strong>Free!</strong> <strong>100 MiB</strong></p>
		<p><strong>Free!</strong> <strong>50 MiB</strong></p></div>`

	cost, err := ParseArchiverCosts(html)
	require.NoError(t, err)
	assert.Equal(t, int64(2100), cost.Org)
	assert.Equal(t, int64(1050), cost.Res)
}

func TestParseArchiverCosts_Malformed(t *testing.T) {
	_, err := ParseArchiverCosts("<html><body>Ошибка сайта</body></html>")
	assert.Error(t, err)
}

func TestSizeToGP(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1 MiB", 21},
		{"100 MiB", 2100},
		{"1 GiB", 21504},
		{"512 KiB", 11}, // 10.5 округляется вверх
		{"524.28 MiB", 11010},
	}

	for _, tt := range tests {
		got, err := SizeToGP(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSizeToGP_BadInput(t *testing.T) {
	_, err := SizeToGP("не размер")
	assert.Error(t, err)

	_, err = SizeToGP("10 parsecs")
	assert.Error(t, err)
}

func TestArchiveCost_ForVariant(t *testing.T) {
	c := &ArchiveCost{Org: 200, Res: 100}
	assert.Equal(t, int64(200), c.ForVariant("org"))
	assert.Equal(t, int64(100), c.ForVariant("res"))
	assert.Equal(t, int64(200), c.ForVariant(""), "неизвестный вариант — оригинал")
}