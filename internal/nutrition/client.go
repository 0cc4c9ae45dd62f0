// Package nutrition looks up packaged food facts by barcode in the
// Open Food Facts database. Two cache tiers sit in front of the API:
// an in-process freecache and a durable KV tier that survives
// restarts, written back on every successful lookup.
package nutrition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/valetudoapp/valetudo/internal/kvstore"
	"github.com/valetudoapp/valetudo/internal/normalize"
	"github.com/valetudoapp/valetudo/internal/telemetry/tracing"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

// DefaultApiUrl is the Open Food Facts v0 product endpoint base.
const DefaultApiUrl = "https://world.openfoodfacts.org/api/v0"

// userAgent per the Open Food Facts API etiquette.
const userAgent = "valetudo-backend/1.0 (https://github.com/valetudoapp/valetudo)"

const (
	oneHour            = 60 * 60
	productCacheExpire = oneHour * 24
)

var ErrProductNotFound = errors.New("no product found")

// Product is a barcode lookup result, macros already normalized.
type Product struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
}

type Client struct {
	cache      *freecache.Cache
	kv         kvstore.Store
	apiUrl     string
	httpClient *http.Client
}

func NewClient(apiUrl string, httpClient *http.Client, kv kvstore.Store) *Client {
	megabyte := 1024 * 1024
	cacheSize := 10 * megabyte

	return &Client{
		cache:      freecache.NewCache(cacheSize),
		kv:         kv,
		apiUrl:     apiUrl,
		httpClient: httpClient,
	}
}

func durableProductKey(barcode string) string {
	return "nutrition::product::" + barcode
}

func (c *Client) LookupBarcode(ctx context.Context, barcode string) (product *Product, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "nutritionClient.lookupBarcode")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	cacheKey := []byte("product::" + barcode)
	if productBytes, err := c.cache.Get(cacheKey); err == nil {
		log.Tracef("found product for barcode %s in cache", barcode)
		product = &Product{}
		if err = json.Unmarshal(productBytes, product); err == nil {
			return product, nil
		}
		log.Errorf("failed to unmarshal cached product for barcode %s: %s", barcode, err)
	}

	// durable tier, survives restarts
	stored, storeErr := kvstore.GetJSON[Product](ctx, c.kv, durableProductKey(barcode))
	if storeErr == nil {
		log.Tracef("found product for barcode %s in the durable cache", barcode)
		c.setLocalCache(cacheKey, &stored)
		return &stored, nil
	}
	if !errors.Is(storeErr, kvstore.ErrNotFound) {
		log.Errorf("failed to read durable product cache for barcode %s: %s", barcode, storeErr)
	}

	productUrl := fmt.Sprintf("%s/product/%s.json", c.apiUrl, barcode)
	log.Debugf("calling nutrition api: %s", productUrl)

	req, err := http.NewRequestWithContext(ctx, "GET", productUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read nutrition api response bytes: %w", err)
	}

	var apiResp productApiResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nutrition api response bytes: %w", err)
	}

	if apiResp.Status != 1 || apiResp.Product == nil {
		return nil, ErrProductNotFound
	}

	p := apiResp.Product
	name := p.ProductName
	if name == "" {
		name = p.GenericName
	}

	product = &Product{
		Barcode:  barcode,
		Name:     normalize.CleanText(name, "Scanned food"),
		Calories: normalize.SafeInt(p.nutriment("energy-kcal_100g", "energy-kcal_serving")),
		Protein:  normalize.SafeInt(p.nutriment("proteins_100g", "proteins_serving")),
		Carbs:    normalize.SafeInt(p.nutriment("carbohydrates_100g", "carbohydrates_serving")),
		Fat:      normalize.SafeInt(p.nutriment("fat_100g", "fat_serving")),
	}

	// write back to both cache tiers
	c.setLocalCache(cacheKey, product)
	if err := kvstore.SetJSON(ctx, c.kv, durableProductKey(barcode), *product); err != nil {
		log.Errorf("failed to write durable product cache for barcode %s: %s", barcode, err)
	}

	return product, nil
}

func (c *Client) setLocalCache(cacheKey []byte, product *Product) {
	productBytes, err := json.Marshal(product)
	if err != nil {
		log.Errorf("failed to marshal product cache for %s: %s", cacheKey, err)
		return
	}
	if err := c.cache.Set(cacheKey, productBytes, productCacheExpire); err != nil {
		log.Errorf("failed to write product cache for %s: %s", cacheKey, err)
	}
}
