package marketplace

import (
	"testing"

	"github.com/smartprocure/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardsPage = `<!DOCTYPE html>
<html><head><title>Industrial Bolts</title><script>var x = "noise@script.com";</script></head>
<body>
  <div class="card">
    <div class="clg">Steelcraft Fasteners</div>
    <span class="pns_h">+91 98765 00001</span>
    <a href="mailto:sales@steelcraft.in?subject=Enquiry">Email</a>
    <span class="newLocationUi">Andheri East, Mumbai</span>
    <span class="prd-name">MS Hex Bolts &amp; Nuts</span>
    <span class="rating">4.6 out of 5</span>
    <a class="cardlinks" href="/proddetail/hex-bolts-123.html">View</a>
  </div>
  <div class="card">
    <div class="clg">Bharat Bolt Works</div>
    <a href="tel:09876500002">Call</a>
    <p>Contact us at info@bharatbolt.in for bulk orders</p>
  </div>
  <div class="card">
    <span class="pns_h">9876500003</span>
  </div>
</body></html>`

func TestParser_Cards(t *testing.T) {
	p := NewParser(Selectors{})

	listings, err := p.Parse([]byte(cardsPage), "https://dir.indiamart.com/search.mp?ss=bolts")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, "Steelcraft Fasteners", first[domain.FieldName])
	assert.Equal(t, "+91 98765 00001", first[domain.FieldPhone])
	assert.Equal(t, "sales@steelcraft.in", first[domain.FieldEmail])
	assert.Equal(t, "Andheri East, Mumbai", first[domain.FieldLocation])
	assert.Equal(t, "MS Hex Bolts & Nuts", first[domain.FieldDescription])
	assert.Equal(t, "4.6 out of 5", first[domain.FieldRating])
	assert.Equal(t, "https://dir.indiamart.com/proddetail/hex-bolts-123.html", first[domain.FieldURL])

	second := listings[1]
	assert.Equal(t, "Bharat Bolt Works", second[domain.FieldName])
	assert.Equal(t, "09876500002", second[domain.FieldPhone])
	assert.Equal(t, "info@bharatbolt.in", second[domain.FieldEmail])
}

func TestParser_FallbackExtraction(t *testing.T) {
	page := `<html><body>
	  <section>
	    <div><a class="clname" href="https://example.com/acme">Acme Industries</a></div>
	    <div>Mobile: 98765-43210, mail acme@example.com</div>
	  </section>
	  <section>
	    <div class="clg">Acme Industries</div>
	  </section>
	</body></html>`

	p := NewParser(Selectors{Card: "div.never-matches"})
	listings, err := p.Parse([]byte(page), "")
	require.NoError(t, err)
	require.Len(t, listings, 1)

	l := listings[0]
	assert.Equal(t, "Acme Industries", l[domain.FieldName])
	assert.Equal(t, "98765-43210", l[domain.FieldPhone])
	assert.Equal(t, "acme@example.com", l[domain.FieldEmail])
	assert.Equal(t, "https://example.com/acme", l[domain.FieldURL])
}

func TestParser_FallbackDoesNotBorrowNeighbourContacts(t *testing.T) {
	page := `<html><body>
	  <div class="results">
	    <div><div class="clg">Alpha Fasteners</div><span>Call 98765 43210</span></div>
	    <div><div class="clg">Beta Bolts Pvt Ltd</div><span>Contact via marketplace</span></div>
	  </div>
	</body></html>`

	p := NewParser(Selectors{Card: "div.never-matches"})
	listings, err := p.Parse([]byte(page), "")
	require.NoError(t, err)
	require.Len(t, listings, 2)

	assert.Equal(t, "Alpha Fasteners", listings[0][domain.FieldName])
	assert.Equal(t, "98765 43210", listings[0][domain.FieldPhone])
	assert.Equal(t, "Beta Bolts Pvt Ltd", listings[1][domain.FieldName])
	assert.Empty(t, listings[1][domain.FieldPhone])
}

func TestParser_JSON(t *testing.T) {
	p := NewParser(Selectors{})

	t.Run("array", func(t *testing.T) {
		listings, err := p.Parse([]byte(`[{"name":"Acme","phone":"9876543210","rating":4.5,"tags":["x"]}]`), "")
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, domain.RawListing{"name": "Acme", "phone": "9876543210", "rating": "4.5"}, listings[0])
	})

	t.Run("envelope", func(t *testing.T) {
		listings, err := p.Parse([]byte(`{"listings":[{"company_name":"Beta"},{}]}`), "")
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, "Beta", listings[0]["company_name"])
	})

	t.Run("results envelope", func(t *testing.T) {
		listings, err := p.Parse([]byte(`{"results":[{"name":"Gamma"}]}`), "")
		require.NoError(t, err)
		require.Len(t, listings, 1)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := p.Parse([]byte(`[{"name":`), "")
		assert.Error(t, err)
	})
}

func TestParser_EmptyBody(t *testing.T) {
	listings, err := NewParser(Selectors{}).Parse([]byte("   "), "")
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestNewParser_KeepsCustomSelectors(t *testing.T) {
	p := NewParser(Selectors{Card: "article.vendor"})
	assert.Equal(t, "article.vendor", p.selectors.Card)
	assert.Equal(t, DefaultSelectors.Name, p.selectors.Name)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "", resolve(nil, "javascript:void(0)"))
	assert.Equal(t, "https://a.com/x", resolve(nil, "https://a.com/x"))
	assert.Equal(t, "", resolve(nil, "/relative"))
}
