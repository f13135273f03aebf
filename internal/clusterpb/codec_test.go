package clusterpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &PlaceDocumentRequest{Index: "books", Commit: true, Document: []byte(`{"title":"dune"}`)}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out PlaceDocumentRequest
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in.Index, out.Index)
	assert.Equal(t, in.Commit, out.Commit)
	assert.JSONEq(t, string(in.Document), string(out.Document))
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "loomjson", jsonCodec{}.Name())
}

func TestServiceDescListsAllNineMethods(t *testing.T) {
	assert.Len(t, ServiceDesc.Methods, 9)
	assert.Equal(t, serviceName, ServiceDesc.ServiceName)
}
