// Package snapshot reads product snapshots from downloaded store pages and
// from YAML backfill files.
package snapshot

import (
	"io"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/shelf-cli/internal/model"
)

// Selectors for the storefront markup.
const (
	selName        = "h1.title"
	selPrice       = "section.product-informations div.product-price"
	selParamRow    = "div.product-parameter-row"
	selParamName   = "span.parameter-name"
	selParamValue  = "span.text-field"
	selEANRow      = `tr.hidden[data-parameter-value="ean"]`
	selDescription = `div.tab[data-tab="description"] p`
	selNextPage    = "div.pagination i.fa-chevron-right"
	selProductTile = "div.col-sm-9 figure.product-tile"
)

// Parameter row labels, lowercased with the trailing colon removed.
const (
	paramPackageSize = "rozmiar opakowania"
	paramFlavour     = "smak"
	paramFoodType    = "typ karmy"
	paramAgeGroup    = "wiek kota"
)

const (
	outOfStock         = "brak towaru"
	markerComposition  = "Skład:"
	markerCompFallback = "Skład"
	markerAnalytical   = "Składniki analityczne"
	markerDietary      = "Dodatki dietetyczne na kg"
)

// ParseProduct reads one product page. Fields the page does not carry are
// left empty (weight: model.WeightNotFound) and become the not-found
// sentinel when the snapshot is normalized.
func ParseProduct(r io.Reader) (model.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "snapshot: parse product page")
	}
	if doc.Find("body").Children().Length() == 0 {
		return model.Snapshot{}, eris.New("snapshot: empty product page")
	}

	name := cleanText(doc.Find(selName).First().Text())
	snap := model.Snapshot{
		Name:         name,
		Manufacturer: manufacturerFromName(name),
		EAN:          productEAN(doc),
		Price:        productPrice(doc),
	}

	params := parameters(doc)
	snap.Weight = ParseWeight(params[paramPackageSize])
	snap.Flavour = params[paramFlavour]
	snap.FoodType = params[paramFoodType]
	snap.AgeGroup = params[paramAgeGroup]

	paragraphs := descriptionParagraphs(doc)
	snap.Composition = firstContaining(paragraphs, markerComposition)
	if snap.Composition == "" {
		snap.Composition = firstContaining(paragraphs, markerCompFallback)
	}
	snap.AnalyticalComposition = firstContaining(paragraphs, markerAnalytical)
	snap.DietarySupplements = firstContaining(paragraphs, markerDietary)
	return snap, nil
}

// manufacturerFromName takes the first " - " segment of a product title.
func manufacturerFromName(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(name, " - ", 2)[0])
}

func productEAN(doc *goquery.Document) string {
	v, _ := doc.Find(selEANRow).First().Attr("data-parameter-default-value")
	return strings.TrimSpace(v)
}

// productPrice returns the single in-stock price on the page. Pages with no
// price or several prices yield nil.
func productPrice(doc *goquery.Document) *float64 {
	var prices []string
	doc.Find(selPrice).Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(cleanText(s.Text()))
		if text != "" && text != outOfStock {
			prices = append(prices, text)
		}
	})
	if len(prices) != 1 {
		return nil
	}
	p, ok := ParsePrice(prices[0])
	if !ok {
		return nil
	}
	return &p
}

func parameters(doc *goquery.Document) map[string]string {
	params := make(map[string]string)
	doc.Find(selParamRow).Each(func(_ int, row *goquery.Selection) {
		name := cleanText(row.Find(selParamName).First().Text())
		name = strings.ToLower(strings.TrimSuffix(name, ":"))
		if name == "" {
			return
		}
		params[name] = cleanText(row.Find(selParamValue).First().Text())
	})
	return params
}

func descriptionParagraphs(doc *goquery.Document) []string {
	var out []string
	doc.Find(selDescription).Each(func(_ int, p *goquery.Selection) {
		out = append(out, strings.TrimSpace(p.Text()))
	})
	return out
}

func firstContaining(paragraphs []string, marker string) string {
	for _, p := range paragraphs {
		if strings.Contains(p, marker) {
			return p
		}
	}
	return ""
}

var weightPattern = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)\s*(g|kg)?$`)

// ParseWeight converts a package size such as "400 g", "85g" or "0,4 kg"
// to grams. Anything else is model.WeightNotFound.
func ParseWeight(raw string) int {
	m := weightPattern.FindStringSubmatch(strings.ToLower(cleanText(raw)))
	if m == nil {
		return model.WeightNotFound
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return model.WeightNotFound
	}
	if m[2] == "kg" {
		v *= 1000
	}
	return int(math.Round(v))
}

// ParsePrice parses a displayed price like "12,99 zł".
func ParsePrice(raw string) (float64, bool) {
	s := strings.ToLower(raw)
	s = strings.ReplaceAll(s, "zł", "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// CollectionPage holds the links found on one collection listing page.
type CollectionPage struct {
	Next     string
	Products []string
}

// ParseCollection reads a collection listing page. Relative links are
// resolved against base.
func ParseCollection(r io.Reader, base *url.URL) (*CollectionPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: parse collection page")
	}

	page := &CollectionPage{}
	if href, ok := doc.Find(selNextPage).First().Closest("a").Attr("href"); ok {
		page.Next = resolve(base, href)
	}
	doc.Find(selProductTile).Each(func(_ int, tile *goquery.Selection) {
		if href, ok := tile.Find("a").First().Attr("href"); ok {
			if link := resolve(base, href); link != "" {
				page.Products = append(page.Products, link)
			}
		}
	})
	return page, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// cleanText collapses runs of whitespace, non-breaking spaces included.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
