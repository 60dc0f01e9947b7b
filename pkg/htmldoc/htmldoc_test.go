package htmldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title>  Camisa   Polo </title></head>
<body>
  <h1 class="mantine-Title-root">Camisa
     Polo Azul</h1>
  <img src="/logo.png">
  <img alt="no source">
  <img src="https://cdn.example.com/X1-front.jpg">
</body></html>`

func TestDocument(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)

	text, ok := doc.Text("h1.mantine-Title-root")
	assert.True(t, ok)
	assert.Equal(t, "Camisa Polo Azul", text)

	text, ok = doc.Text("title")
	assert.True(t, ok)
	assert.Equal(t, "Camisa Polo", text)

	_, ok = doc.Text("h2")
	assert.False(t, ok)

	src, ok := doc.Attr("img", "src")
	assert.True(t, ok)
	assert.Equal(t, "/logo.png", src)

	_, ok = doc.Attr("img.mantine-Image-root", "src")
	assert.False(t, ok)

	assert.Equal(t, []string{"/logo.png", "https://cdn.example.com/X1-front.jpg"}, doc.AllAttr("img", "src"))
}
