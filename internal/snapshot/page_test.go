package snapshot

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelf-cli/internal/model"
)

const productPage = `<!DOCTYPE html>
<html><body>
<h1 class="title">Animonda Carny - Wołowina z indykiem 400g</h1>
<section class="product-informations">
  <div class="product-price">brak towaru</div>
  <div class="product-price"> 12,99 zł </div>
</section>
<div class="product-parameter-row"><span class="parameter-name">Rozmiar opakowania:</span><span class="text-field">400 g</span></div>
<div class="product-parameter-row"><span class="parameter-name">Smak:</span><span class="text-field">wołowina</span></div>
<div class="product-parameter-row"><span class="parameter-name">Typ karmy:</span><span class="text-field">mokra</span></div>
<div class="product-parameter-row"><span class="parameter-name">Wiek kota:</span><span class="text-field">dorosły</span></div>
<table>
  <tr class="hidden" data-parameter-value="sku" data-parameter-default-value="AN-1"></tr>
  <tr class="hidden" data-parameter-value="ean" data-parameter-default-value="4017721837194"></tr>
</table>
<div class="tab" data-tab="description">
  <p>Pełnoporcjowa karma dla kotów.</p>
  <p>Skład: wołowina 70%, indyk 29%, minerały 1%</p>
  <p>Składniki analityczne: białko 10,5%, tłuszcz 6%, wilgotność 80%</p>
  <p>Dodatki dietetyczne na kg: witamina D3 200 j.m., tauryna 500 mg</p>
</div>
</body></html>`

func TestParseProduct(t *testing.T) {
	snap, err := ParseProduct(strings.NewReader(productPage))
	require.NoError(t, err)

	assert.Equal(t, "Animonda Carny - Wołowina z indykiem 400g", snap.Name)
	assert.Equal(t, "Animonda Carny", snap.Manufacturer)
	assert.Equal(t, "4017721837194", snap.EAN)
	assert.Equal(t, 400, snap.Weight)
	assert.Equal(t, "wołowina", snap.Flavour)
	assert.Equal(t, "mokra", snap.FoodType)
	assert.Equal(t, "dorosły", snap.AgeGroup)
	assert.Equal(t, "Skład: wołowina 70%, indyk 29%, minerały 1%", snap.Composition)
	assert.Contains(t, snap.AnalyticalComposition, "białko 10,5%")
	assert.Contains(t, snap.DietarySupplements, "tauryna 500 mg")
	require.NotNil(t, snap.Price)
	assert.InDelta(t, 12.99, *snap.Price, 1e-9)
}

func TestParseProduct_MissingFields(t *testing.T) {
	page := `<html><body><h1 class="title">Bozita</h1>
<section class="product-informations"><div class="product-price">brak towaru</div></section>
<div class="tab" data-tab="description"><p>Składniki: kurczak</p></div>
</body></html>`

	snap, err := ParseProduct(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "Bozita", snap.Manufacturer)
	assert.Empty(t, snap.EAN)
	assert.Nil(t, snap.Price)
	assert.Equal(t, model.WeightNotFound, snap.Weight)
	assert.Equal(t, "Składniki: kurczak", snap.Composition, "falls back to the bare marker")
	assert.Empty(t, snap.AnalyticalComposition)

	norm := snap.Normalize()
	assert.Equal(t, model.NotFound, norm.Flavour)
	assert.Equal(t, model.NotFound, norm.DietarySupplements)
}

func TestParseProduct_SeveralPrices(t *testing.T) {
	page := `<html><body><section class="product-informations">
<div class="product-price">10,00 zł</div><div class="product-price">12,00 zł</div>
</section></body></html>`

	snap, err := ParseProduct(strings.NewReader(page))
	require.NoError(t, err)
	assert.Nil(t, snap.Price)
}

func TestParseProduct_Empty(t *testing.T) {
	_, err := ParseProduct(strings.NewReader(""))
	assert.Error(t, err)
}

func TestParseWeight(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"400 g", 400},
		{"85g", 85},
		{"0,4 kg", 400},
		{"1.2kg", 1200},
		{"200", 200},
		{"6 x 85 g", model.WeightNotFound},
		{"", model.WeightNotFound},
		{"duże", model.WeightNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseWeight(tt.in))
		})
	}
}

func TestParsePrice(t *testing.T) {
	p, ok := ParsePrice("12,99 zł")
	require.True(t, ok)
	assert.InDelta(t, 12.99, p, 1e-9)

	p, ok = ParsePrice("7.5zł")
	require.True(t, ok)
	assert.InDelta(t, 7.5, p, 1e-9)

	_, ok = ParsePrice("zł")
	assert.False(t, ok)
	_, ok = ParsePrice("na zamówienie")
	assert.False(t, ok)
}

func TestParseCollection(t *testing.T) {
	page := `<html><body>
<div class="col-sm-9">
  <figure class="product-tile"><a href="/Animonda-Carny-400g">A</a></figure>
  <figure class="product-tile"><a href="https://kociefigle.pl/Bozita-Kurczak">B</a></figure>
</div>
<div class="col-sm-3"><figure class="product-tile"><a href="/Polecane">X</a></figure></div>
<div class="pagination"><a href="/Karmy-Mokre?page=2"><i class="fa fa-chevron-right"></i></a></div>
</body></html>`
	base, err := url.Parse("https://kociefigle.pl/")
	require.NoError(t, err)

	got, err := ParseCollection(strings.NewReader(page), base)
	require.NoError(t, err)
	assert.Equal(t, "https://kociefigle.pl/Karmy-Mokre?page=2", got.Next)
	assert.Equal(t, []string{
		"https://kociefigle.pl/Animonda-Carny-400g",
		"https://kociefigle.pl/Bozita-Kurczak",
	}, got.Products)
}

func TestParseCollection_LastPage(t *testing.T) {
	got, err := ParseCollection(strings.NewReader(`<html><body><div class="pagination"></div></body></html>`), nil)
	require.NoError(t, err)
	assert.Empty(t, got.Next)
	assert.Empty(t, got.Products)
}
