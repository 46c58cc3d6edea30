package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/models"
)

func TestWriteManualMap(t *testing.T) {
	var buf bytes.Buffer
	err := writeManualMap(&buf, []models.ManualPathMap{
		{Subpath: "bibxml/reference.RFC.1.xml", DocID: "RFC0001", UpdatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Subpath: "bibxml3/reference.I-D.x,y.xml", DocID: "draft-x"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"xml2rfc_subpath,docid,updated_at\n"+
			"bibxml/reference.RFC.1.xml,RFC0001,2024-03-01T12:00:00Z\n"+
			"\"bibxml3/reference.I-D.x,y.xml\",draft-x,\n",
		buf.String())
}
