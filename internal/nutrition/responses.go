package nutrition

import "strconv"

// open food facts product endpoint response
// https://world.openfoodfacts.org/api/v0/product/<barcode>.json
type productApiResponse struct {
	Status  int      `json:"status"`
	Code    string   `json:"code"`
	Product *product `json:"product"`
}

type product struct {
	ProductName string         `json:"product_name"`
	GenericName string         `json:"generic_name"`
	Nutriments  map[string]any `json:"nutriments"`
}

// nutriment values come back as either numbers or strings,
// depending on the product
func (p *product) nutriment(keys ...string) float64 {
	for _, key := range keys {
		switch v := p.Nutriments[key].(type) {
		case float64:
			return v
		case string:
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}
