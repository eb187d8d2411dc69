package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGroundTruthCSV(t *testing.T) {
	csv := strings.Join([]string{
		"image_id,brand,product_family,model_number,serial_number,verified",
		"img-1,LG,WASHTOWER,WKEX200HBA,SN1234567890,true",
		"img-2,Whirlpool,,WTW5000DW,,false",
	}, "\n")

	entries, err := parseGroundTruthCSV(strings.NewReader(csv), "acme")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "img-1", entries[0].ImageID)
	assert.Equal(t, "acme", entries[0].OwnerID)
	assert.Equal(t, "LG", entries[0].Brand)
	assert.Equal(t, "WASHTOWER", entries[0].ProductFamily)
	assert.Equal(t, "WKEX200HBA", entries[0].ModelNumber)
	assert.Equal(t, "SN1234567890", entries[0].SerialNumber)
	assert.True(t, entries[0].Verified)

	assert.Equal(t, "img-2", entries[1].ImageID)
	assert.Empty(t, entries[1].ProductFamily)
	assert.False(t, entries[1].Verified)
}

func TestParseGroundTruthCSVColumnOrderFree(t *testing.T) {
	csv := "brand,image_id,ignored_column\nSamsung,img-9,whatever\n"

	entries, err := parseGroundTruthCSV(strings.NewReader(csv), "acme")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "img-9", entries[0].ImageID)
	assert.Equal(t, "Samsung", entries[0].Brand)
}

func TestParseGroundTruthCSVMissingImageIDColumn(t *testing.T) {
	_, err := parseGroundTruthCSV(strings.NewReader("brand,model_number\nLG,WM3400CW\n"), "acme")
	assert.ErrorContains(t, err, "image_id column")
}

func TestParseGroundTruthCSVBlankImageID(t *testing.T) {
	csv := "image_id,brand\nimg-1,LG\n,GE\n"

	_, err := parseGroundTruthCSV(strings.NewReader(csv), "acme")
	assert.ErrorContains(t, err, "line 3")
}

func TestParseGroundTruthCSVBadVerified(t *testing.T) {
	csv := "image_id,verified\nimg-1,maybe\n"

	_, err := parseGroundTruthCSV(strings.NewReader(csv), "acme")
	assert.ErrorContains(t, err, "verified column")
}
